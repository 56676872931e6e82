package queue

import "errors"

var (
	// ErrNotOwned is returned when removing a job another component still owns.
	ErrNotOwned = errors.New("job is owned by another component")
	// ErrNotQueued is returned for jobs that are not in the queue.
	ErrNotQueued = errors.New("job is not queued")
)
