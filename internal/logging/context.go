package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one organize pass.
	FieldRunID = "run_id"
	// FieldCycleID identifies one daemon cycle.
	FieldCycleID = "cycle_id"
	// FieldPath is the primary file a log line refers to.
	FieldPath = "path"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

type contextKey int

const (
	runIDKey contextKey = iota
	cycleIDKey
)

// WithRunID stamps ctx with the identifier of the current organize pass.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithCycleID stamps ctx with the identifier of the current daemon cycle.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleIDKey, id)
}

// RunIDFromContext returns the run identifier stored on ctx.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 2)
	if id, ok := ctx.Value(cycleIDKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCycleID, id))
	}
	if id, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
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
