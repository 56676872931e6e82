package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	prefixSize = 4
	// MaxFrameSize bounds a declared frame length; anything larger is treated
	// as a corrupt prefix.
	MaxFrameSize = 16 << 20
)

var (
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")
	ErrShortPayload  = errors.New("wire: payload truncated")
	ErrEmptyPayload  = errors.New("wire: empty payload")
)

// Encode serialises msg into a length-prefixed frame.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("wire: nil message")
	}
	e := &encoder{buf: make([]byte, prefixSize, 64)}
	e.u8(uint8(msg.Opcode()))
	msg.encodeFields(e)
	payload := len(e.buf) - prefixSize
	if payload > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, payload)
	}
	binary.BigEndian.PutUint32(e.buf[:prefixSize], uint32(payload))
	return e.buf, nil
}

// WriteMessage encodes msg and writes the frame to w in a single call.
func WriteMessage(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *encoder) u32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }

func (e *encoder) i32(v int32) { e.u32(uint32(v)) }

func (e *encoder) f32(v float32) { e.u32(math.Float32bits(v)) }

func (e *encoder) raw(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) bytes(b []byte) {
	e.u32(uint32(len(b)))
	e.raw(b)
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) strs(values []string) {
	e.u32(uint32(len(values)))
	for _, v := range values {
		e.str(v)
	}
}

func (e *encoder) record(r ErrorRecord) {
	nested := &encoder{}
	nested.u8(r.Kind)
	nested.i32(r.Code)
	nested.str(r.Message)
	nested.str(r.Hint)
	e.bytes(nested.buf)
}

func (e *encoder) variant(v Variant) {
	e.u8(uint8(v.Type))
	switch v.Type {
	case VariantString:
		e.str(v.Str)
	case VariantInt:
		e.i32(v.Int)
	case VariantBool:
		if v.Bool {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case VariantFloat:
		e.f32(v.Float)
	}
}

// reader walks a payload; the first failure sticks and later reads return
// zero values.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf) < n {
		r.err = ErrShortPayload
		return nil
	}
	out := r.buf[:n]
	r.buf = r.buf[n:]
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *reader) bytes() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	if n > uint32(len(r.buf)) {
		r.err = ErrShortPayload
		return nil
	}
	b := r.take(int(n))
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *reader) str() string {
	n := r.u32()
	if r.err != nil {
		return ""
	}
	if n > uint32(len(r.buf)) {
		r.err = ErrShortPayload
		return ""
	}
	return string(r.take(int(n)))
}

func (r *reader) strs() []string {
	count := r.u32()
	if r.err != nil || count == 0 {
		return nil
	}
	// Every string needs at least its 4-byte length.
	if uint64(count)*prefixSize > uint64(len(r.buf)) {
		r.err = ErrShortPayload
		return nil
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count && r.err == nil; i++ {
		out = append(out, r.str())
	}
	return out
}

func (r *reader) record() ErrorRecord {
	blob := r.bytes()
	if r.err != nil {
		return ErrorRecord{}
	}
	nested := &reader{buf: blob}
	rec := ErrorRecord{
		Kind:    nested.u8(),
		Code:    nested.i32(),
		Message: nested.str(),
		Hint:    nested.str(),
	}
	if nested.err != nil {
		r.err = nested.err
		return ErrorRecord{}
	}
	return rec
}

func (r *reader) variant() Variant {
	v := Variant{Type: VariantType(r.u8())}
	switch v.Type {
	case VariantNull:
	case VariantString:
		v.Str = r.str()
	case VariantInt:
		v.Int = r.i32()
	case VariantBool:
		v.Bool = r.u8() != 0
	case VariantFloat:
		v.Float = r.f32()
	default:
		if r.err == nil {
			r.err = fmt.Errorf("wire: unknown variant type %d", v.Type)
		}
	}
	return v
}

// decodePayload turns one complete frame payload into a message. Unknown
// opcodes become Custom so newer workers stay compatible.
func decodePayload(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	op := Opcode(payload[0])
	r := &reader{buf: payload[1:]}

	var msg Message
	switch op {
	case OpStartUpload:
		msg = StartUpload{JobPath: r.str(), LastError: r.record()}
	case OpUpdateAll:
		msg = UpdateAll{AccountID: r.str()}
	case OpUpdate:
		msg = Update{AccountID: r.str(), OptionID: r.str()}
	case OpAddValue:
		msg = AddValue{AccountID: r.str(), OptionID: r.str(), Value: r.str()}
	case OpStop:
		msg = Stop{}
	case OpSendingMedia:
		msg = SendingMedia{Index: r.u32()}
	case OpProgress:
		msg = Progress{Fraction: r.f32()}
	case OpDone:
		msg = Done{}
	case OpStopped:
		msg = Stopped{}
	case OpUploadFailed:
		msg = UploadFailed{Error: r.record()}
	case OpUpdateFailed:
		msg = UpdateFailed{ErrorCode: r.i32(), FailedIDs: r.strs()}
	case OpOptionValueChanged:
		msg = OptionValueChanged{Name: r.str(), Value: r.variant(), MediaIndex: r.i32()}
	case OpCustom:
		msg = Custom{Code: OpCustom, Blob: r.bytes()}
	default:
		var blob []byte
		if len(r.buf) > 0 {
			blob = make([]byte, len(r.buf))
			copy(blob, r.buf)
		}
		return Custom{Code: op, Blob: blob}, nil
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode %s: %w", op, r.err)
	}
	return msg, nil
}
