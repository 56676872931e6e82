package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"webupload/internal/jobstore"
	"webupload/internal/logging"
	"webupload/internal/queue"
	"webupload/internal/services"
	"webupload/internal/wire"
)

// SubmitRequest describes a new job. JobFile names a TOML submission; Files
// lists media directly. Account overrides the submission's account.
type SubmitRequest struct {
	Account string   `json:"account,omitempty"`
	JobFile string   `json:"jobFile,omitempty"`
	Files   []string `json:"files,omitempty"`
}

// Submit validates the request, stores a new descriptor and queues it.
// Media inspection and storage run on the caller's goroutine; the source path
// stays reserved in the queue while the descriptor is built.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (JobView, error) {
	account, source, paths, err := resolveSubmission(req)
	if err != nil {
		return JobView{}, err
	}
	if _, err := e.resolver.WorkerPath(account); err != nil {
		return JobView{}, err
	}

	reply := make(chan error, 1)
	if err := e.request(ctx, reserveInput{source: source, reply: reply}); err != nil {
		return JobView{}, err
	}
	reserveErr, err := awaitReply(ctx, e, reply)
	if err != nil {
		e.post(releaseInput{source: source, pending: reply})
		return JobView{}, err
	}
	if reserveErr != nil {
		return JobView{}, reserveErr
	}
	defer e.post(releaseInput{source: source})

	media, err := jobstore.BuildMedia(paths, e.cfg.Preprocess.ProcessTypes, e.cfg.Preprocess.Enabled)
	if err != nil {
		return JobView{}, err
	}
	desc, err := e.store.Create(ctx, jobstore.NewJob{SourcePath: source, Account: account, Media: media})
	if err != nil {
		return JobView{}, err
	}

	pushed := make(chan pushReply, 1)
	if err := e.request(ctx, pushInput{desc: desc, reply: pushed, cancelOnReject: true}); err != nil {
		// The job never reached the loop; keep the store consistent.
		_ = desc.Cancel(context.Background())
		return JobView{}, err
	}
	res, err := awaitReply(ctx, e, pushed)
	if err != nil {
		return JobView{}, err
	}
	return res.view, res.err
}

func resolveSubmission(req SubmitRequest) (account, source string, paths []string, err error) {
	account = strings.TrimSpace(req.Account)
	switch {
	case req.JobFile != "":
		sub, readErr := jobstore.ReadSubmission(req.JobFile)
		if readErr != nil {
			return "", "", nil, readErr
		}
		if account == "" {
			account = strings.TrimSpace(sub.Account)
		}
		source, err = filepath.Abs(req.JobFile)
		if err != nil {
			return "", "", nil, fmt.Errorf("resolve job file: %w", err)
		}
		paths = sub.Paths()
	case len(req.Files) > 0:
		abs := make([]string, 0, len(req.Files))
		for _, file := range req.Files {
			p, absErr := filepath.Abs(file)
			if absErr != nil {
				return "", "", nil, fmt.Errorf("resolve %s: %w", file, absErr)
			}
			abs = append(abs, p)
		}
		paths = abs
		source = strings.Join(abs, ", ")
	default:
		return "", "", nil, services.Wrap(services.ErrValidation, "engine", "submit", "a job file or at least one media file is required", nil)
	}
	if account == "" {
		return "", "", nil, services.WithHint(
			services.Wrap(services.ErrValidation, "engine", "submit", "account is required", nil),
			"pass --account or set account in the job file",
		)
	}
	if len(paths) == 0 {
		return "", "", nil, services.Wrap(services.ErrValidation, "engine", "submit", "job has no media", nil)
	}
	return account, source, paths, nil
}

// Enqueue pushes an existing descriptor.
func (e *Engine) Enqueue(ctx context.Context, desc queue.Descriptor) (JobView, error) {
	return e.enqueue(ctx, desc, nil)
}

func (e *Engine) enqueue(ctx context.Context, desc queue.Descriptor, last error) (JobView, error) {
	reply := make(chan pushReply, 1)
	if err := e.request(ctx, pushInput{desc: desc, last: last, reply: reply}); err != nil {
		return JobView{}, err
	}
	res, err := awaitReply(ctx, e, reply)
	if err != nil {
		return JobView{}, err
	}
	return res.view, res.err
}

// Recover pushes every unfinished stored job that is not already queued and
// returns how many were added.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	descs, err := e.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, desc := range descs {
		_, err := e.enqueue(ctx, desc, restoredError(desc.LastError()))
		switch {
		case err == nil:
			added++
		case errors.Is(err, ErrDuplicate):
		default:
			return added, err
		}
	}
	return added, nil
}

// loadRecovered replays the recovered-job feed on the Run goroutine.
func (e *Engine) loadRecovered(ctx context.Context) (int, error) {
	descs, err := e.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, desc := range descs {
		if _, err := e.push(desc, restoredError(desc.LastError())); err == nil {
			added++
		}
	}
	return added, nil
}

func restoredError(last jobstore.LastError) error {
	if last.IsZero() {
		return nil
	}
	kind, ok := services.ParseKind(last.Kind)
	if !ok || kind == services.KindNone {
		kind = services.KindCustom
	}
	return services.FromRecord(wire.ErrorRecord{Kind: uint8(kind), Message: last.Message, Hint: last.Hint})
}

func (e *Engine) reserve(source string) error {
	if e.shuttingDown {
		return ErrShuttingDown
	}
	if !e.queue.BeginConstruction(source) {
		return services.Wrap(ErrDuplicate, "engine", "submit", fmt.Sprintf("%s is already queued", source), nil)
	}
	e.constructing++
	e.disarmIdle()
	return nil
}

func (e *Engine) release(source string) {
	e.queue.EndConstruction(source)
	e.constructing--
	if e.queue.Len() == 0 && e.constructing == 0 {
		e.armIdle()
	}
}

func (e *Engine) push(desc queue.Descriptor, last error) (JobView, error) {
	if e.shuttingDown {
		return JobView{}, ErrShuttingDown
	}
	if desc == nil {
		return JobView{}, services.Wrap(services.ErrValidation, "engine", "enqueue", "descriptor is required", nil)
	}
	if e.queue.Find(desc.ID()) != nil {
		return JobView{}, services.Wrap(ErrDuplicate, "engine", "enqueue", fmt.Sprintf("job %s is already queued", desc.ID()), nil)
	}
	job := queue.NewJob(desc)
	job.SetLastError(last)
	job.SetPendingReason(queue.PendingQueued)
	if !e.queue.Push(job) {
		return JobView{}, services.Wrap(ErrDuplicate, "engine", "enqueue", fmt.Sprintf("job %s is already queued", desc.ID()), nil)
	}
	e.disarmIdle()
	e.logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldAccount, desc.Account()),
		logging.Int("media_count", desc.MediaCount()),
		logging.Int("position", e.queue.Len()),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return e.view(job, e.queue.Len()-1), nil
}
