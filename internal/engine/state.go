package engine

import "errors"

// State is the engine's top-level mode.
type State int

const (
	StateIdle State = iota
	StateOffline
	StateSending
	StateShuttingDown
	StateMassStorage
	// StateFailed and StatePaused are reserved; no transition enters them.
	StateFailed
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffline:
		return "offline"
	case StateSending:
		return "sending"
	case StateShuttingDown:
		return "shutting_down"
	case StateMassStorage:
		return "mass_storage"
	case StateFailed:
		return "failed"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

var (
	// ErrStopped is returned by requests made after the engine exited.
	ErrStopped = errors.New("engine stopped")
	// ErrShuttingDown is returned for queue mutations during shutdown.
	ErrShuttingDown = errors.New("engine shutting down")
	// ErrDuplicate is returned when the same source is already queued.
	ErrDuplicate = errors.New("job already queued")
)

// stopReason records why the engine asked the upload worker to stop.
type stopReason int

const (
	stopNone stopReason = iota
	stopPromote
	stopCancel
	stopDevice
)

func (r stopReason) String() string {
	switch r {
	case stopPromote:
		return "promote"
	case stopCancel:
		return "cancel"
	case stopDevice:
		return "mass_storage"
	default:
		return "none"
	}
}
