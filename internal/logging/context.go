package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldItem is the standardized structured logging key for work item root names.
	FieldItem = "item"
	// FieldWorker is the standardized structured logging key for the worker index within a stage.
	FieldWorker = "worker"
	// FieldEventType classifies a log line for filtering (e.g. "lost_connection").
	FieldEventType = "event_type"
	// FieldErrorHint is the operator-facing next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldCorrelationID ties together the log lines of one dispatch.
	FieldCorrelationID = "correlation_id"
)

type ctxKey int

const (
	stageKey ctxKey = iota
	itemKey
	correlationKey
)

// WithStage tags ctx with a stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// WithItem tags ctx with a work item root name.
func WithItem(ctx context.Context, item string) context.Context {
	return context.WithValue(ctx, itemKey, item)
}

// WithCorrelationID tags ctx with a dispatch correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// StageFromContext returns the stage name stored by WithStage.
func StageFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(stageKey).(string)
	return value, ok && value != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if stage, ok := StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if item, ok := ctx.Value(itemKey).(string); ok && item != "" {
		fields = append(fields, slog.String(FieldItem, item))
	}
	if id, ok := ctx.Value(correlationKey).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldCorrelationID, id))
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
