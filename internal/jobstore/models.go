package jobstore

import (
	"strings"
	"time"

	"webupload/internal/queue"
)

// Status is the persisted lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusDone      Status = "done"
)

var allStatuses = []Status{StatusQueued, StatusFailed, StatusCancelled, StatusDone}

// AllStatuses returns every known status.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus maps a string to a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCancelled || s == StatusDone
}

// NewJob describes a job to create.
type NewJob struct {
	SourcePath string
	Account    string
	Media      []queue.Media
}

// LastError is the persisted form of a job's most recent failure.
type LastError struct {
	Kind    string
	Message string
	Hint    string
}

// IsZero reports whether no failure is recorded.
func (e LastError) IsZero() bool {
	return e.Kind == "" && e.Message == "" && e.Hint == ""
}

// Summary is a read-only snapshot of a job row for listings.
type Summary struct {
	ID          string
	SourcePath  string
	Account     string
	Status      Status
	Attempts    int
	MaxAttempts int
	MediaCount  int
	MediaSent   int
	TotalSize   int64
	LastError   LastError
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
