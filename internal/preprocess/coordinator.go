package preprocess

import (
	"context"
	"log/slog"

	"webupload/internal/logging"
	"webupload/internal/queue"
	"webupload/internal/services"
)

// Preprocessor produces a local processed copy of one media item and returns
// its path.
type Preprocessor interface {
	Process(ctx context.Context, desc queue.Descriptor, index int) (string, error)
}

// Result is the outcome of one item. Index is -1 when the job had nothing
// left to process.
type Result struct {
	Job   *queue.Job
	Index int
	Path  string
	Err   error
}

// OutcomeKind tells the engine what a Result meant for the job.
type OutcomeKind int

const (
	// OutcomeProgress means the next item was started.
	OutcomeProgress OutcomeKind = iota
	OutcomeDone
	OutcomeFailed
	OutcomeStopped
	// OutcomeIgnored is returned for results of a job the coordinator no
	// longer drives.
	OutcomeIgnored
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProgress:
		return "progress"
	case OutcomeDone:
		return "done"
	case OutcomeFailed:
		return "failed"
	case OutcomeStopped:
		return "stopped"
	default:
		return "ignored"
	}
}

// Outcome is returned by Handle. Err is set for OutcomeFailed and classified
// as StorageFull, SourceFileMissing or a generic failure.
type Outcome struct {
	Kind OutcomeKind
	Job  *queue.Job
	Err  error
}

// Options configures a Coordinator.
type Options struct {
	Preprocessor Preprocessor
	// Post delivers results to the engine goroutine.
	Post   func(Result)
	Logger *slog.Logger
}

// Coordinator runs preprocessing for at most one job at a time.
type Coordinator struct {
	pre    Preprocessor
	post   func(Result)
	logger *slog.Logger

	current  *queue.Job
	index    int
	cancel   context.CancelFunc
	stopping bool
}

// New constructs a Coordinator.
func New(opts Options) *Coordinator {
	return &Coordinator{
		pre:    opts.Preprocessor,
		post:   opts.Post,
		logger: logging.NewComponentLogger(opts.Logger, "preprocess"),
		index:  -1,
	}
}

// Current returns the job being driven, or nil.
func (c *Coordinator) Current() *queue.Job {
	return c.current
}

// Idle reports whether no job is being driven.
func (c *Coordinator) Idle() bool {
	return c.current == nil
}

// Start takes ownership of job and begins with its first unprocessed item.
// It returns false when another job is already being driven.
func (c *Coordinator) Start(job *queue.Job) bool {
	if job == nil || c.current != nil {
		return false
	}
	c.current = job
	c.stopping = false
	job.SetOwner(queue.OwnerPreprocessor)
	job.SetPendingReason(queue.PendingProcessing)
	c.logger.Debug("preprocessing started",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldEventType, "preprocess_started"),
	)
	c.launch(nextUnprocessed(job.Descriptor(), 0))
	return true
}

// Stop asks the coordinator to stop driving job, or whatever job it drives
// when job is nil. The in-flight item is cancelled and the Stopped outcome is
// reported once its result arrives. It returns false when there is nothing
// to stop.
func (c *Coordinator) Stop(job *queue.Job) bool {
	if c.current == nil {
		return false
	}
	if job != nil && job != c.current {
		return false
	}
	if !c.stopping {
		c.stopping = true
		c.current.SetStopRequested(true)
		if c.cancel != nil {
			c.cancel()
		}
	}
	return true
}

// Handle applies a posted Result and reports what it meant.
func (c *Coordinator) Handle(res Result) Outcome {
	job := c.current
	if job == nil || res.Job != job || res.Index != c.index {
		return Outcome{Kind: OutcomeIgnored, Job: res.Job}
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	desc := job.Descriptor()

	if res.Index >= 0 && res.Err == nil {
		if err := desc.SetProcessedPath(context.Background(), res.Index, res.Path); err != nil {
			res.Err = err
		}
	}

	if c.stopping || job.Cancelled() {
		c.finish()
		c.logger.Debug("preprocessing stopped",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Int(logging.FieldMediaIndex, res.Index),
			logging.String(logging.FieldEventType, "preprocess_stopped"),
		)
		return Outcome{Kind: OutcomeStopped, Job: job}
	}

	if res.Err != nil {
		failure := classify(res.Err)
		c.finish()
		c.logger.Warn("preprocessing failed",
			logging.String(logging.FieldJobID, job.ID()),
			logging.Int(logging.FieldMediaIndex, res.Index),
			logging.String(logging.FieldErrorKind, services.KindOf(failure).String()),
			logging.Error(failure),
			logging.String(logging.FieldEventType, "preprocess_failed"),
			logging.String(logging.FieldErrorHint, "check the source files and staging_dir free space"),
			logging.String(logging.FieldImpact, "job will not upload until repaired"),
		)
		return Outcome{Kind: OutcomeFailed, Job: job, Err: failure}
	}

	if next := nextUnprocessed(desc, res.Index+1); next >= 0 {
		c.launch(next)
		return Outcome{Kind: OutcomeProgress, Job: job}
	}

	job.SetProcessed(true)
	c.finish()
	c.logger.Debug("preprocessing done",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldEventType, "preprocess_done"),
	)
	return Outcome{Kind: OutcomeDone, Job: job}
}

func (c *Coordinator) finish() {
	job := c.current
	c.current = nil
	c.index = -1
	c.stopping = false
	if job != nil {
		job.SetStopRequested(false)
		job.SetOwner(queue.OwnerQueue)
	}
}

func (c *Coordinator) launch(index int) {
	job := c.current
	c.index = index
	ctx, cancel := context.WithCancel(services.WithJobID(context.Background(), job.ID()))
	c.cancel = cancel
	if index < 0 {
		go c.post(Result{Job: job, Index: -1})
		return
	}
	desc := job.Descriptor()
	go func() {
		path, err := c.pre.Process(ctx, desc, index)
		c.post(Result{Job: job, Index: index, Path: path, Err: err})
	}()
}

// nextUnprocessed returns the first unsent item at or after from without a
// local copy, or -1.
func nextUnprocessed(desc queue.Descriptor, from int) int {
	for i := max(from, 0); i < desc.MediaCount(); i++ {
		media := desc.Media(i)
		if media.Sent {
			continue
		}
		if !media.HasLocalCopy() {
			return i
		}
	}
	return -1
}

func classify(err error) error {
	switch services.KindOf(err) {
	case services.KindStorageFull, services.KindSourceFileMissing:
		return err
	}
	return services.Wrap(services.ErrCustom, "preprocess", "process media", "", err)
}
