package services

import "context"

type contextKey int

const (
	jobIDKey contextKey = iota
	accountKey
	requestIDKey
)

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}

// WithJobID tags ctx with the job being worked on. Empty ids leave ctx as is.
func WithJobID(ctx context.Context, id string) context.Context { return withValue(ctx, jobIDKey, id) }

func JobIDFromContext(ctx context.Context) (string, bool) { return valueFrom(ctx, jobIDKey) }

// WithAccount tags ctx with the destination account.
func WithAccount(ctx context.Context, account string) context.Context {
	return withValue(ctx, accountKey, account)
}

func AccountFromContext(ctx context.Context) (string, bool) { return valueFrom(ctx, accountKey) }

// WithRequestID tags ctx with the correlation id of one control request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return valueFrom(ctx, requestIDKey) }
