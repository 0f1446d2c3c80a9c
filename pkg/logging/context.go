package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey     ctxKey = "trace_id"
	MessageIDKey   ctxKey = "message_id"
	ServiceNameKey ctxKey = "service_name"
	LeadIDKey      ctxKey = "lead_id"
	TaskIDKey      ctxKey = "task_id"
)

// fieldOrder fixes the order in which context fields are emitted.
var fieldOrder = []ctxKey{TraceIDKey, MessageIDKey, ServiceNameKey, LeadIDKey, TaskIDKey}

func with(ctx context.Context, key ctxKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func get(ctx context.Context, key ctxKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return with(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func WithLeadID(ctx context.Context, leadID string) context.Context {
	return with(ctx, LeadIDKey, leadID)
}

func WithTaskID(ctx context.Context, taskID string) context.Context {
	return with(ctx, TaskIDKey, taskID)
}

func GetTraceID(ctx context.Context) string     { return get(ctx, TraceIDKey) }
func GetMessageID(ctx context.Context) string   { return get(ctx, MessageIDKey) }
func GetServiceName(ctx context.Context) string { return get(ctx, ServiceNameKey) }
func GetLeadID(ctx context.Context) string      { return get(ctx, LeadIDKey) }
func GetTaskID(ctx context.Context) string      { return get(ctx, TaskIDKey) }

// GetLogFields returns the context values as zap key/value pairs.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 2*len(fieldOrder))
	for _, key := range fieldOrder {
		if v := get(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
