package logging

import (
	"context"
	"log/slog"

	"webupload/internal/services"
)

// Standard structured keys. Console output lifts component, account and
// job_id into the line prefix.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldAccount       = "account"
	FieldWorkerUnit    = "worker_unit"
	FieldMediaIndex    = "media_index"
	FieldEventType     = "event_type"
	FieldErrorKind     = "error_kind"
	FieldCorrelationID = "correlation_id"

	// FieldErrorHint tells an operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact states the user-visible consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields returns the job, account and correlation attributes carried
// by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if account, ok := services.AccountFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldAccount, account))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext binds the ContextFields of ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
