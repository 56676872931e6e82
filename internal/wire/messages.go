package wire

import (
	"fmt"
	"strconv"
)

// Opcode identifies the message kind carried by a frame.
type Opcode uint8

const (
	OpStartUpload        Opcode = 1
	OpUpdateAll          Opcode = 2
	OpUpdate             Opcode = 3
	OpAddValue           Opcode = 4
	OpStop               Opcode = 5
	OpSendingMedia       Opcode = 16
	OpProgress           Opcode = 17
	OpDone               Opcode = 18
	OpStopped            Opcode = 19
	OpUploadFailed       Opcode = 20
	OpUpdateFailed       Opcode = 21
	OpOptionValueChanged Opcode = 22
	OpCustom             Opcode = 255
)

var opcodeNames = map[Opcode]string{
	OpStartUpload:        "start_upload",
	OpUpdateAll:          "update_all",
	OpUpdate:             "update",
	OpAddValue:           "add_value",
	OpStop:               "stop",
	OpSendingMedia:       "sending_media",
	OpProgress:           "progress",
	OpDone:               "done",
	OpStopped:            "stopped",
	OpUploadFailed:       "upload_failed",
	OpUpdateFailed:       "update_failed",
	OpOptionValueChanged: "option_value_changed",
	OpCustom:             "custom",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "opcode_" + strconv.Itoa(int(o))
}

// Message is a decoded or to-be-encoded frame payload.
type Message interface {
	Opcode() Opcode
	encodeFields(e *encoder)
}

// ErrorRecord is the nested failure description carried by StartUpload and
// UploadFailed. Kind mirrors services.Kind; Code is service specific.
type ErrorRecord struct {
	Kind    uint8
	Code    int32
	Message string
	Hint    string
}

// IsZero reports whether the record carries no failure.
func (r ErrorRecord) IsZero() bool {
	return r.Kind == 0 && r.Code == 0 && r.Message == "" && r.Hint == ""
}

// VariantType tags the dynamic value of a Variant.
type VariantType uint8

const (
	VariantNull VariantType = iota
	VariantString
	VariantInt
	VariantBool
	VariantFloat
)

// Variant is a small tagged union used for option values.
type Variant struct {
	Type  VariantType
	Str   string
	Int   int32
	Bool  bool
	Float float32
}

func StringVariant(v string) Variant { return Variant{Type: VariantString, Str: v} }

func IntVariant(v int32) Variant { return Variant{Type: VariantInt, Int: v} }

func BoolVariant(v bool) Variant { return Variant{Type: VariantBool, Bool: v} }

func FloatVariant(v float32) Variant { return Variant{Type: VariantFloat, Float: v} }

// Interface returns the Go value held by the variant, or nil.
func (v Variant) Interface() any {
	switch v.Type {
	case VariantString:
		return v.Str
	case VariantInt:
		return v.Int
	case VariantBool:
		return v.Bool
	case VariantFloat:
		return v.Float
	default:
		return nil
	}
}

func (v Variant) String() string {
	if v.Type == VariantNull {
		return ""
	}
	return fmt.Sprint(v.Interface())
}

type StartUpload struct {
	JobPath   string
	LastError ErrorRecord
}

type UpdateAll struct {
	AccountID string
}

type Update struct {
	AccountID string
	OptionID  string
}

type AddValue struct {
	AccountID string
	OptionID  string
	Value     string
}

type Stop struct{}

// SendingMedia announces that the worker started transferring the media item
// at Index; every item before it has been sent.
type SendingMedia struct {
	Index uint32
}

type Progress struct {
	Fraction float32
}

type Done struct{}

type Stopped struct{}

type UploadFailed struct {
	Error ErrorRecord
}

// UpdateFailed reports an option operation the service refused. An empty
// FailedIDs list decodes as nil.
type UpdateFailed struct {
	ErrorCode int32
	FailedIDs []string
}

type OptionValueChanged struct {
	Name       string
	Value      Variant
	MediaIndex int32
}

// Custom carries payloads the decoder does not classify. Code is OpCustom for
// explicit custom frames and the original opcode for unknown ones. An empty
// Blob decodes as nil.
type Custom struct {
	Code Opcode
	Blob []byte
}

func (StartUpload) Opcode() Opcode        { return OpStartUpload }
func (UpdateAll) Opcode() Opcode          { return OpUpdateAll }
func (Update) Opcode() Opcode             { return OpUpdate }
func (AddValue) Opcode() Opcode           { return OpAddValue }
func (Stop) Opcode() Opcode               { return OpStop }
func (SendingMedia) Opcode() Opcode       { return OpSendingMedia }
func (Progress) Opcode() Opcode           { return OpProgress }
func (Done) Opcode() Opcode               { return OpDone }
func (Stopped) Opcode() Opcode            { return OpStopped }
func (UploadFailed) Opcode() Opcode       { return OpUploadFailed }
func (UpdateFailed) Opcode() Opcode       { return OpUpdateFailed }
func (OptionValueChanged) Opcode() Opcode { return OpOptionValueChanged }

func (c Custom) Opcode() Opcode {
	if c.Code == 0 {
		return OpCustom
	}
	return c.Code
}

func (m StartUpload) encodeFields(e *encoder) {
	e.str(m.JobPath)
	e.record(m.LastError)
}

func (m UpdateAll) encodeFields(e *encoder) { e.str(m.AccountID) }

func (m Update) encodeFields(e *encoder) {
	e.str(m.AccountID)
	e.str(m.OptionID)
}

func (m AddValue) encodeFields(e *encoder) {
	e.str(m.AccountID)
	e.str(m.OptionID)
	e.str(m.Value)
}

func (Stop) encodeFields(*encoder)    {}
func (Done) encodeFields(*encoder)    {}
func (Stopped) encodeFields(*encoder) {}

func (m SendingMedia) encodeFields(e *encoder) { e.u32(m.Index) }

func (m Progress) encodeFields(e *encoder) { e.f32(m.Fraction) }

func (m UploadFailed) encodeFields(e *encoder) { e.record(m.Error) }

func (m UpdateFailed) encodeFields(e *encoder) {
	e.i32(m.ErrorCode)
	e.strs(m.FailedIDs)
}

func (m OptionValueChanged) encodeFields(e *encoder) {
	e.str(m.Name)
	e.variant(m.Value)
	e.i32(m.MediaIndex)
}

func (m Custom) encodeFields(e *encoder) {
	if m.Opcode() == OpCustom {
		e.bytes(m.Blob)
		return
	}
	e.raw(m.Blob)
}

// IsTerminal reports whether msg ends a worker's unit of work.
func IsTerminal(msg Message) bool {
	switch msg.(type) {
	case Done, Stopped, UploadFailed, UpdateFailed:
		return true
	default:
		return false
	}
}
