package engine

import (
	"webupload/internal/preprocess"
	"webupload/internal/queue"
	"webupload/internal/worker"
)

// input is anything delivered to the engine goroutine.
type input interface {
	isInput()
}

type reserveInput struct {
	source string
	reply  chan error
}

type releaseInput struct {
	source  string
	pending chan error
}

type pushInput struct {
	desc  queue.Descriptor
	last  error
	reply chan pushReply

	// cancelOnReject cancels the stored descriptor when the push fails.
	cancelOnReject bool
}

type pushReply struct {
	view JobView
	err  error
}

type controlKind int

const (
	controlCancel controlKind = iota
	controlPromote
	controlRepair
)

func (k controlKind) String() string {
	switch k {
	case controlCancel:
		return "cancel"
	case controlPromote:
		return "promote"
	default:
		return "repair"
	}
}

type controlInput struct {
	kind  controlKind
	id    string
	reply chan error
}

type connectivityInput struct {
	online bool
}

type massStorageInput struct {
	active bool
}

type workerInput struct {
	event worker.Event
}

type prepInput struct {
	result preprocess.Result
}

type snapshotInput struct {
	reply chan Snapshot
}

type shutdownInput struct {
	reason string
}

type idleInput struct {
	generation int
}

func (reserveInput) isInput()      {}
func (releaseInput) isInput()      {}
func (pushInput) isInput()         {}
func (controlInput) isInput()      {}
func (connectivityInput) isInput() {}
func (massStorageInput) isInput()  {}
func (workerInput) isInput()       {}
func (prepInput) isInput()         {}
func (snapshotInput) isInput()     {}
func (shutdownInput) isInput()     {}
func (idleInput) isInput()         {}
