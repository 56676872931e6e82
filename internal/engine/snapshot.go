package engine

import (
	"context"

	"webupload/internal/queue"
	"webupload/internal/services"
)

// Snapshot is a point-in-time view of the engine and its queue.
type Snapshot struct {
	State        string    `json:"state"`
	Online       bool      `json:"online"`
	MassStorage  bool      `json:"massStorage"`
	ShuttingDown bool      `json:"shuttingDown"`
	Immortal     bool      `json:"immortal"`
	Jobs         []JobView `json:"jobs"`
}

// Job returns the view for id.
func (s Snapshot) Job(id string) (JobView, bool) {
	for _, job := range s.Jobs {
		if job.ID == id {
			return job, true
		}
	}
	return JobView{}, false
}

// JobView describes one queued job.
type JobView struct {
	ID            string  `json:"id"`
	Account       string  `json:"account"`
	SourcePath    string  `json:"sourcePath"`
	Position      int     `json:"position"`
	Owner         string  `json:"owner"`
	Pending       string  `json:"pending"`
	Cancelled     bool    `json:"cancelled"`
	Failed        bool    `json:"failed"`
	Processed     bool    `json:"processed"`
	StopRequested bool    `json:"stopRequested"`
	MediaCount    int     `json:"mediaCount"`
	MediaSent     int     `json:"mediaSent"`
	CurrentMedia  int     `json:"currentMedia"`
	TotalBytes    int64   `json:"totalBytes"`
	UnsentBytes   int64   `json:"unsentBytes"`
	Progress      float64 `json:"progress"`
	ETASeconds    float64 `json:"etaSeconds,omitempty"`
	LastErrorKind string  `json:"lastErrorKind,omitempty"`
	LastError     string  `json:"lastError,omitempty"`
	LastErrorHint string  `json:"lastErrorHint,omitempty"`
}

// Snapshot returns the current engine state.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := e.request(ctx, snapshotInput{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	return awaitReply(ctx, e, reply)
}

func (e *Engine) snapshot() Snapshot {
	snap := Snapshot{
		State:        e.state.String(),
		Online:       e.online,
		MassStorage:  e.massStorage,
		ShuttingDown: e.shuttingDown,
		Immortal:     e.immortal,
	}
	jobs := e.queue.Jobs()
	snap.Jobs = make([]JobView, 0, len(jobs))
	for i, job := range jobs {
		snap.Jobs = append(snap.Jobs, e.view(job, i))
	}
	return snap
}

func (e *Engine) view(job *queue.Job, position int) JobView {
	desc := job.Descriptor()
	view := JobView{
		ID:            job.ID(),
		Account:       desc.Account(),
		SourcePath:    desc.SourcePath(),
		Position:      position,
		Owner:         job.Owner().String(),
		Pending:       job.PendingReason().String(),
		Cancelled:     job.Cancelled(),
		Failed:        job.Failed(),
		Processed:     job.Processed(),
		StopRequested: job.StopRequested(),
		MediaCount:    desc.MediaCount(),
		MediaSent:     desc.MediaSentCount(),
		CurrentMedia:  job.CurrentMedia(),
		TotalBytes:    desc.TotalSize(),
		UnsentBytes:   desc.UnsentSize(),
		Progress:      job.Estimator().Fraction(),
	}
	if eta, ok := job.Estimator().Estimate(); ok {
		view.ETASeconds = eta.Seconds()
	}
	if err := job.LastError(); err != nil {
		view.LastErrorKind = services.KindOf(err).String()
		view.LastError = err.Error()
		view.LastErrorHint = services.Hint(err)
	}
	return view
}
