package services

import (
	"errors"
	"fmt"
	"strings"

	"webupload/internal/wire"
)

// Kind classifies a failure for the engine and for reporting.
type Kind uint8

const (
	KindNone Kind = iota
	KindConnectivityLost
	KindAccountUnavailable
	KindStorageFull
	KindSourceFileMissing
	KindServiceRejected
	KindProtocolDesync
	KindWorkerCrashed
	KindCustom
)

var (
	ErrConnectivityLost   = errors.New("connectivity lost")
	ErrAccountUnavailable = errors.New("account or credential unavailable")
	ErrStorageFull        = errors.New("storage full")
	ErrSourceFileMissing  = errors.New("source file missing")
	ErrServiceRejected    = errors.New("service rejected request")
	ErrProtocolDesync     = errors.New("protocol desync")
	ErrWorkerCrashed      = errors.New("worker crashed")
	ErrCustom             = errors.New("transfer failed")

	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
)

var kindNames = [...]string{
	KindNone:               "none",
	KindConnectivityLost:   "connectivity_lost",
	KindAccountUnavailable: "account_unavailable",
	KindStorageFull:        "storage_full",
	KindSourceFileMissing:  "source_file_missing",
	KindServiceRejected:    "service_rejected",
	KindProtocolDesync:     "protocol_desync",
	KindWorkerCrashed:      "worker_crashed",
	KindCustom:             "custom",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindCustom]
}

// ParseKind maps a persisted kind name back to its value.
func ParseKind(value string) (Kind, bool) {
	value = strings.TrimSpace(strings.ToLower(value))
	for i, name := range kindNames {
		if name == value {
			return Kind(i), true
		}
	}
	return KindNone, false
}

// Marker returns the sentinel error for the kind.
func (k Kind) Marker() error {
	switch k {
	case KindConnectivityLost:
		return ErrConnectivityLost
	case KindAccountUnavailable:
		return ErrAccountUnavailable
	case KindStorageFull:
		return ErrStorageFull
	case KindSourceFileMissing:
		return ErrSourceFileMissing
	case KindServiceRejected:
		return ErrServiceRejected
	case KindProtocolDesync:
		return ErrProtocolDesync
	case KindWorkerCrashed:
		return ErrWorkerCrashed
	default:
		return ErrCustom
	}
}

// DeviceRelated reports whether the kind can be caused by local storage being
// unavailable, for example while the device is exported as mass storage.
func (k Kind) DeviceRelated() bool {
	return k == KindStorageFull || k == KindSourceFileMissing
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrCustom
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err by the first sentinel it wraps. Unclassified errors
// are KindCustom; nil is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var detailed *detailedError
	if errors.As(err, &detailed) && detailed.kind != KindNone {
		return detailed.kind
	}
	switch {
	case errors.Is(err, ErrConnectivityLost):
		return KindConnectivityLost
	case errors.Is(err, ErrAccountUnavailable):
		return KindAccountUnavailable
	case errors.Is(err, ErrStorageFull):
		return KindStorageFull
	case errors.Is(err, ErrSourceFileMissing):
		return KindSourceFileMissing
	case errors.Is(err, ErrServiceRejected):
		return KindServiceRejected
	case errors.Is(err, ErrProtocolDesync):
		return KindProtocolDesync
	case errors.Is(err, ErrWorkerCrashed):
		return KindWorkerCrashed
	default:
		return KindCustom
	}
}

// detailedError carries the recovery hint and service code reported by a
// worker alongside the classified kind.
type detailedError struct {
	kind    Kind
	code    int32
	message string
	hint    string
}

func (e *detailedError) Error() string {
	if e.message == "" {
		return e.kind.Marker().Error()
	}
	return e.kind.Marker().Error() + ": " + e.message
}

func (e *detailedError) Unwrap() error { return e.kind.Marker() }

// WithHint attaches a user-facing recovery hint to err.
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	return &hintError{err: err, hint: strings.TrimSpace(hint)}
}

type hintError struct {
	err  error
	hint string
}

func (e *hintError) Error() string { return e.err.Error() }

func (e *hintError) Unwrap() error { return e.err }

// Hint returns the recovery hint attached to err, if any.
func Hint(err error) string {
	var he *hintError
	if errors.As(err, &he) && he.hint != "" {
		return he.hint
	}
	var de *detailedError
	if errors.As(err, &de) {
		return de.hint
	}
	return ""
}

// Code returns the service-specific code carried by a worker failure.
func Code(err error) int32 {
	var de *detailedError
	if errors.As(err, &de) {
		return de.code
	}
	return 0
}

// FromRecord converts a wire error record into an error. A zero record is nil.
func FromRecord(rec wire.ErrorRecord) error {
	if rec.IsZero() {
		return nil
	}
	kind := Kind(rec.Kind)
	if kind == KindNone || int(kind) >= len(kindNames) {
		kind = KindCustom
	}
	return &detailedError{kind: kind, code: rec.Code, message: rec.Message, hint: rec.Hint}
}

// ToRecord converts err into the record sent back to workers with a retried
// StartUpload.
func ToRecord(err error) wire.ErrorRecord {
	if err == nil {
		return wire.ErrorRecord{}
	}
	var de *detailedError
	if errors.As(err, &de) {
		return wire.ErrorRecord{Kind: uint8(de.kind), Code: de.code, Message: de.message, Hint: Hint(err)}
	}
	return wire.ErrorRecord{Kind: uint8(KindOf(err)), Message: err.Error(), Hint: Hint(err)}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
