package queue

import (
	"context"
	"os"

	"webupload/internal/progress"
)

// Owner identifies the component allowed to mutate a job's transfer state.
type Owner int

const (
	OwnerQueue Owner = iota
	OwnerPreprocessor
	OwnerUploadWorker
)

func (o Owner) String() string {
	switch o {
	case OwnerPreprocessor:
		return "preprocessor"
	case OwnerUploadWorker:
		return "upload_worker"
	default:
		return "queue"
	}
}

// PendingReason explains why a queued job is not moving. It is informational.
type PendingReason int

const (
	PendingNone PendingReason = iota
	PendingConnectivity
	PendingQueued
	PendingProcessing
	PendingDeviceBusy
)

func (r PendingReason) String() string {
	switch r {
	case PendingConnectivity:
		return "connectivity"
	case PendingQueued:
		return "queued"
	case PendingProcessing:
		return "processing"
	case PendingDeviceBusy:
		return "device_busy"
	default:
		return "none"
	}
}

// Media describes one item of a job.
type Media struct {
	SourcePath      string
	ProcessedPath   string
	MimeType        string
	Size            int64
	NeedsProcessing bool
	Sent            bool
}

// UploadPath is the file a worker should read for this item.
func (m Media) UploadPath() string {
	if m.ProcessedPath != "" {
		return m.ProcessedPath
	}
	return m.SourcePath
}

// HasLocalCopy reports whether the item is ready for upload: it needs no
// processing or its processed copy exists on disk.
func (m Media) HasLocalCopy() bool {
	if !m.NeedsProcessing {
		return true
	}
	if m.ProcessedPath == "" {
		return false
	}
	_, err := os.Stat(m.ProcessedPath)
	return err == nil
}

// Descriptor is the persisted description of a transfer request.
type Descriptor interface {
	ID() string
	// SourcePath identifies what the job was built from and backs duplicate detection.
	SourcePath() string
	// Path is the job file handed to the upload worker.
	Path() string
	Account() string
	MediaCount() int
	Media(index int) Media
	MediaSentCount() int
	TotalSize() int64
	UnsentSize() int64

	SetProcessedPath(ctx context.Context, index int, path string) error
	// MarkSent records that every item before index has been transferred.
	MarkSent(ctx context.Context, index int) error
	Cancel(ctx context.Context) error
	Persist(ctx context.Context) error
	// MarkFailed records a failed attempt and reports whether a retry is allowed.
	MarkFailed(ctx context.Context, err error) (bool, error)
	// Requeue clears a failed status after a repair.
	Requeue(ctx context.Context) error
	MarkDone(ctx context.Context) error
}

// Job is a queued transfer request plus the engine's bookkeeping for it.
type Job struct {
	desc          Descriptor
	owner         Owner
	cancelled     bool
	processed     bool
	failed        bool
	stopRequested bool
	pending       PendingReason
	lastError     error
	currentMedia  int
	estimator     *progress.Estimator
}

// NewJob wraps desc and computes its processed flag.
func NewJob(desc Descriptor) *Job {
	return NewJobWithEstimator(desc, progress.NewEstimator())
}

// NewJobWithEstimator wraps desc using the supplied estimator.
func NewJobWithEstimator(desc Descriptor, estimator *progress.Estimator) *Job {
	if estimator == nil {
		estimator = progress.NewEstimator()
	}
	job := &Job{desc: desc, estimator: estimator, currentMedia: -1}
	job.RecomputeProcessed()
	return job
}

func (j *Job) Descriptor() Descriptor { return j.desc }

func (j *Job) ID() string { return j.desc.ID() }

func (j *Job) Owner() Owner { return j.owner }

func (j *Job) SetOwner(owner Owner) { j.owner = owner }

// Cancelled reports whether cancellation was requested. It never reverts.
func (j *Job) Cancelled() bool { return j.cancelled }

// MarkCancelled sets the cancelled flag.
func (j *Job) MarkCancelled() { j.cancelled = true }

func (j *Job) Processed() bool { return j.processed }

func (j *Job) SetProcessed(processed bool) { j.processed = processed }

// RecomputeProcessed re-derives the processed flag from the unsent items.
func (j *Job) RecomputeProcessed() bool {
	processed := true
	for i := 0; i < j.desc.MediaCount(); i++ {
		media := j.desc.Media(i)
		if media.Sent {
			continue
		}
		if !media.HasLocalCopy() {
			processed = false
			break
		}
	}
	j.processed = processed
	return processed
}

// Failed reports whether the job failed and waits at the head for a repair.
func (j *Job) Failed() bool { return j.failed }

func (j *Job) SetFailed(failed bool) { j.failed = failed }

// StopRequested reports whether the engine asked the current owner to stop.
func (j *Job) StopRequested() bool { return j.stopRequested }

func (j *Job) SetStopRequested(v bool) { j.stopRequested = v }

func (j *Job) PendingReason() PendingReason { return j.pending }

func (j *Job) SetPendingReason(reason PendingReason) { j.pending = reason }

func (j *Job) LastError() error { return j.lastError }

func (j *Job) SetLastError(err error) { j.lastError = err }

// CurrentMedia is the index being transferred, or -1.
func (j *Job) CurrentMedia() int { return j.currentMedia }

func (j *Job) SetCurrentMedia(index int) { j.currentMedia = index }

func (j *Job) Estimator() *progress.Estimator { return j.estimator }
