package monitoring

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	runIDKey     contextKey = "run_id"
	requestIDKey contextKey = "request_id"
)

// NewRunID returns a short identifier for one batch job run.
func NewRunID() string {
	return uuid.New().String()[:8]
}

// ContextWithRunID tags ctx with a job run identifier.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier, or "" when absent.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// ContextWithRequestID tags ctx with an HTTP request identifier.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request identifier, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Ctx returns the structured logger with any run or request id from ctx
// attached as fields.
//
//	monitoring.Ctx(ctx).Info().Str("profile_id", id).Msg("tdee updated")
func Ctx(ctx context.Context) *zerolog.Logger {
	c := Logger().With()
	if id := RunIDFromContext(ctx); id != "" {
		c = c.Str("run_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		c = c.Str("request_id", id)
	}
	l := c.Logger()
	return &l
}
