package services

import "context"

type contextKey string

const (
	taskIDKey    contextKey = "task_id"
	queueKey     contextKey = "queue"
	stageKey     contextKey = "stage"
	requestIDKey contextKey = "request_id"
)

// WithTaskID annotates context with the queue task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithQueue annotates context with the queue name a task was consumed from.
func WithQueue(ctx context.Context, queue string) context.Context {
	if queue == "" {
		return ctx
	}
	return context.WithValue(ctx, queueKey, queue)
}

// QueueFromContext returns the queue name if present.
func QueueFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(queueKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
