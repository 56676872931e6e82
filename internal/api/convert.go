package api

import (
	"time"

	"webupload/internal/engine"
	"webupload/internal/jobstore"
	"webupload/internal/preflight"
	"webupload/internal/wire"
)

// FromSnapshot splits an engine snapshot into its state and job listing.
func FromSnapshot(snap engine.Snapshot) (EngineStatus, []JobItem) {
	status := EngineStatus{
		State:        snap.State,
		Online:       snap.Online,
		MassStorage:  snap.MassStorage,
		ShuttingDown: snap.ShuttingDown,
		Immortal:     snap.Immortal,
	}
	jobs := make([]JobItem, 0, len(snap.Jobs))
	for _, view := range snap.Jobs {
		jobs = append(jobs, FromJobView(view))
	}
	return status, jobs
}

// FromJobView converts an engine job view.
func FromJobView(view engine.JobView) JobItem {
	item := JobItem{
		ID:            view.ID,
		Account:       view.Account,
		SourcePath:    view.SourcePath,
		Position:      view.Position,
		Owner:         view.Owner,
		Pending:       view.Pending,
		Cancelled:     view.Cancelled,
		Failed:        view.Failed,
		Processed:     view.Processed,
		StopRequested: view.StopRequested,
		Media: JobMedia{
			Count:       view.MediaCount,
			Sent:        view.MediaSent,
			Current:     view.CurrentMedia,
			TotalBytes:  view.TotalBytes,
			UnsentBytes: view.UnsentBytes,
		},
		Progress: JobProgress{
			Fraction:   view.Progress,
			Percent:    view.Progress * 100,
			ETASeconds: view.ETASeconds,
		},
	}
	if view.LastError != "" || view.LastErrorKind != "" {
		item.LastError = &JobError{Kind: view.LastErrorKind, Message: view.LastError, Hint: view.LastErrorHint}
	}
	return item
}

// FromSummary converts a stored job summary.
func FromSummary(sum jobstore.Summary) StoredJob {
	job := StoredJob{
		ID:          sum.ID,
		Account:     sum.Account,
		SourcePath:  sum.SourcePath,
		Status:      string(sum.Status),
		Attempts:    sum.Attempts,
		MaxAttempts: sum.MaxAttempts,
		MediaCount:  sum.MediaCount,
		MediaSent:   sum.MediaSent,
		TotalBytes:  sum.TotalSize,
		CreatedAt:   formatTime(sum.CreatedAt),
		UpdatedAt:   formatTime(sum.UpdatedAt),
	}
	if !sum.LastError.IsZero() {
		job.LastError = &JobError{Kind: sum.LastError.Kind, Message: sum.LastError.Message, Hint: sum.LastError.Hint}
	}
	return job
}

// FromOption converts a cached option record.
func FromOption(rec jobstore.OptionRecord) AccountOption {
	return AccountOption{
		Account:    rec.AccountID,
		Name:       rec.Name,
		MediaIndex: rec.MediaIndex,
		Type:       VariantTypeName(rec.Value.Type),
		Value:      rec.Value.Interface(),
		UpdatedAt:  formatTime(rec.UpdatedAt),
	}
}

// FromChange converts an option change reported during an operation.
func FromChange(account string, change wire.OptionValueChanged) AccountOption {
	return AccountOption{
		Account:    account,
		Name:       change.Name,
		MediaIndex: change.MediaIndex,
		Type:       VariantTypeName(change.Value.Type),
		Value:      change.Value.Interface(),
	}
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, 0, len(results))
	for _, res := range results {
		out = append(out, CheckResult{Name: res.Name, Passed: res.Passed, Detail: res.Detail})
	}
	return out
}

// VariantTypeName returns the lowercase name of a variant type.
func VariantTypeName(t wire.VariantType) string {
	switch t {
	case wire.VariantString:
		return "string"
	case wire.VariantInt:
		return "int"
	case wire.VariantBool:
		return "bool"
	case wire.VariantFloat:
		return "float"
	default:
		return "null"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
