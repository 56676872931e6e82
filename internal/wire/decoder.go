package wire

import "encoding/binary"

// Decoder reassembles frames from a byte stream. It is not safe for
// concurrent use; each worker stream owns one decoder.
type Decoder struct {
	prefix  [prefixSize]byte
	prefixN int

	// need counts the payload bytes still missing for the frame in flight.
	// A nil frame means the decoder is reading a length prefix.
	need  int
	frame []byte

	desyncs   int
	malformed int
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed consumes chunk and returns every message completed by it, in stream
// order. A chunk may hold any number of frames, including a fraction of one.
func (d *Decoder) Feed(chunk []byte) []Message {
	var out []Message
	for len(chunk) > 0 {
		if d.frame == nil {
			n := copy(d.prefix[d.prefixN:], chunk)
			d.prefixN += n
			chunk = chunk[n:]
			if d.prefixN < prefixSize {
				break
			}
			d.prefixN = 0
			length := binary.BigEndian.Uint32(d.prefix[:])
			if length == 0 || length > MaxFrameSize {
				d.desyncs++
				continue
			}
			d.need = int(length)
			d.frame = make([]byte, 0, d.need)
			continue
		}

		n := min(d.need, len(chunk))
		d.frame = append(d.frame, chunk[:n]...)
		d.need -= n
		chunk = chunk[n:]
		if d.need > 0 {
			continue
		}

		payload := d.frame
		d.frame = nil
		msg, err := decodePayload(payload)
		if err != nil {
			d.malformed++
			continue
		}
		out = append(out, msg)
	}
	return out
}

// Pending reports whether a partial prefix or frame is buffered.
func (d *Decoder) Pending() bool {
	return d.prefixN > 0 || d.frame != nil
}

// Reset drops any partially assembled frame.
func (d *Decoder) Reset() {
	d.prefixN = 0
	d.need = 0
	d.frame = nil
}

// Desyncs returns how many corrupt length prefixes were discarded.
func (d *Decoder) Desyncs() int { return d.desyncs }

// Malformed returns how many complete frames failed to decode.
func (d *Decoder) Malformed() int { return d.malformed }
