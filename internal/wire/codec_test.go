package wire

import (
	"encoding/binary"
	"reflect"
	"testing"
)

func catalog() []Message {
	return []Message{
		StartUpload{JobPath: "/var/lib/webupload/jobs/a.toml"},
		StartUpload{JobPath: "/tmp/job.toml", LastError: ErrorRecord{Kind: 1, Code: 503, Message: "network down", Hint: "check wifi"}},
		UpdateAll{AccountID: "flickr-main"},
		Update{AccountID: "flickr-main", OptionID: "albums"},
		AddValue{AccountID: "flickr-main", OptionID: "albums", Value: "Holidays 2026"},
		Stop{},
		SendingMedia{Index: 3},
		Progress{Fraction: 0.25},
		Done{},
		Stopped{},
		UploadFailed{Error: ErrorRecord{Kind: 5, Code: 401, Message: "token expired", Hint: "sign in again"}},
		UpdateFailed{ErrorCode: 7, FailedIDs: []string{"albums", "groups"}},
		OptionValueChanged{Name: "album", Value: StringVariant("Summer"), MediaIndex: 2},
		OptionValueChanged{Name: "public", Value: BoolVariant(true), MediaIndex: -1},
		OptionValueChanged{Name: "quota", Value: IntVariant(-12), MediaIndex: 0},
		OptionValueChanged{Name: "ratio", Value: FloatVariant(0.5), MediaIndex: 1},
		OptionValueChanged{Name: "cleared", Value: Variant{}, MediaIndex: 1},
		UpdateFailed{ErrorCode: 2},
		Custom{Code: OpCustom, Blob: []byte{0xde, 0xad, 0xbe, 0xef}},
		Custom{Code: OpCustom},
	}
}

func TestEmptyBlobAndListDecodeAsNil(t *testing.T) {
	cases := []struct {
		in   Message
		want Message
	}{
		{Custom{Code: OpCustom, Blob: []byte{}}, Custom{Code: OpCustom}},
		{UpdateFailed{ErrorCode: 4, FailedIDs: []string{}}, UpdateFailed{ErrorCode: 4}},
	}
	for _, tc := range cases {
		frame, err := Encode(tc.in)
		if err != nil {
			t.Fatalf("encode %T: %v", tc.in, err)
		}
		got := NewDecoder().Feed(frame)
		if len(got) != 1 || !reflect.DeepEqual(got[0], tc.want) {
			t.Fatalf("decoded %#v, want %#v", got, tc.want)
		}
	}
}

func TestRoundTripSingleChunk(t *testing.T) {
	for _, msg := range catalog() {
		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("encode %T: %v", msg, err)
		}
		got := NewDecoder().Feed(frame)
		if len(got) != 1 {
			t.Fatalf("%T: expected 1 message, got %d", msg, len(got))
		}
		if !reflect.DeepEqual(got[0], msg) {
			t.Fatalf("round trip mismatch: got %#v want %#v", got[0], msg)
		}
	}
}

func TestRoundTripSplitAtEveryOffset(t *testing.T) {
	for _, msg := range catalog() {
		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("encode %T: %v", msg, err)
		}
		for split := 1; split < len(frame); split++ {
			dec := NewDecoder()
			first := dec.Feed(frame[:split])
			if len(first) != 0 {
				t.Fatalf("%T split %d: message emitted before frame completed", msg, split)
			}
			got := dec.Feed(frame[split:])
			if len(got) != 1 || !reflect.DeepEqual(got[0], msg) {
				t.Fatalf("%T split %d: got %#v", msg, split, got)
			}
			if dec.Pending() {
				t.Fatalf("%T split %d: decoder still pending", msg, split)
			}
		}
	}
}

func TestRoundTripByteAtATime(t *testing.T) {
	for _, msg := range catalog() {
		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("encode %T: %v", msg, err)
		}
		dec := NewDecoder()
		var got []Message
		for i := range frame {
			got = append(got, dec.Feed(frame[i:i+1])...)
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0], msg) {
			t.Fatalf("%T byte-at-a-time: got %#v", msg, got)
		}
	}
}

func TestMultipleFramesKeepStreamOrder(t *testing.T) {
	msgs := []Message{SendingMedia{Index: 0}, Progress{Fraction: 0.5}, SendingMedia{Index: 1}, Done{}}
	var stream []byte
	for _, msg := range msgs {
		frame, err := Encode(msg)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		stream = append(stream, frame...)
	}
	got := NewDecoder().Feed(stream)
	if !reflect.DeepEqual(got, msgs) {
		t.Fatalf("unexpected order: %#v", got)
	}
}

func TestZeroLengthPrefixRecovers(t *testing.T) {
	frame, err := Encode(Progress{Fraction: 0.75})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	stream := append([]byte{0, 0, 0, 0}, frame...)

	dec := NewDecoder()
	got := dec.Feed(stream)
	if len(got) != 1 || !reflect.DeepEqual(got[0], Progress{Fraction: 0.75}) {
		t.Fatalf("expected recovered progress frame, got %#v", got)
	}
	if dec.Desyncs() != 1 {
		t.Fatalf("expected 1 desync, got %d", dec.Desyncs())
	}
}

func TestOversizedPrefixRecoversAcrossChunks(t *testing.T) {
	frame, err := Encode(Done{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bad := make([]byte, 4)
	binary.BigEndian.PutUint32(bad, MaxFrameSize+1)

	dec := NewDecoder()
	if got := dec.Feed(bad[:2]); len(got) != 0 {
		t.Fatalf("unexpected messages: %#v", got)
	}
	got := dec.Feed(append(bad[2:], frame...))
	if len(got) != 1 || !reflect.DeepEqual(got[0], Done{}) {
		t.Fatalf("expected done after desync, got %#v", got)
	}
	if dec.Desyncs() != 1 {
		t.Fatalf("expected 1 desync, got %d", dec.Desyncs())
	}
}

func TestUnknownOpcodeDecodesAsCustom(t *testing.T) {
	payload := []byte{0x42, 1, 2, 3}
	frame := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	frame = append(frame, payload...)

	got := NewDecoder().Feed(frame)
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	custom, ok := got[0].(Custom)
	if !ok {
		t.Fatalf("expected Custom, got %T", got[0])
	}
	if custom.Code != 0x42 || !reflect.DeepEqual(custom.Blob, []byte{1, 2, 3}) {
		t.Fatalf("unexpected custom payload: %#v", custom)
	}

	reencoded, err := Encode(custom)
	if err != nil {
		t.Fatalf("encode custom: %v", err)
	}
	if !reflect.DeepEqual(reencoded, frame) {
		t.Fatalf("re-encoded unknown frame differs: %v vs %v", reencoded, frame)
	}
}

func TestMalformedBodyIsDroppedAndStreamContinues(t *testing.T) {
	// A SendingMedia frame whose body is one byte short.
	bad := []byte{0, 0, 0, 4, byte(OpSendingMedia), 0, 0, 1}
	good, err := Encode(Stopped{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec := NewDecoder()
	got := dec.Feed(append(bad, good...))
	if len(got) != 1 || !reflect.DeepEqual(got[0], Stopped{}) {
		t.Fatalf("expected stopped, got %#v", got)
	}
	if dec.Malformed() != 1 {
		t.Fatalf("expected 1 malformed frame, got %d", dec.Malformed())
	}
}

func TestEncodeFramePrefix(t *testing.T) {
	frame, err := Encode(SendingMedia{Index: 9})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if got := binary.BigEndian.Uint32(frame[:4]); int(got) != len(frame)-4 {
		t.Fatalf("prefix %d does not match payload length %d", got, len(frame)-4)
	}
	if Opcode(frame[4]) != OpSendingMedia {
		t.Fatalf("unexpected opcode %d", frame[4])
	}
}

func TestIsTerminal(t *testing.T) {
	cases := []struct {
		msg  Message
		want bool
	}{
		{Done{}, true},
		{Stopped{}, true},
		{UploadFailed{}, true},
		{Progress{Fraction: 0.1}, false},
		{SendingMedia{Index: 1}, false},
		{Custom{Code: OpCustom}, false},
	}
	for _, tc := range cases {
		if got := IsTerminal(tc.msg); got != tc.want {
			t.Fatalf("IsTerminal(%T) = %v, want %v", tc.msg, got, tc.want)
		}
	}
}
