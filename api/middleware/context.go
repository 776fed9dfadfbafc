package middleware

import "context"

type contextKey string

const ctxCorrelationID contextKey = "correlation_id"

// CorrelationIDFromContext returns the correlation id attached by CorrelationID.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCorrelationID).(string); ok {
		return v
	}
	return ""
}

// WithCorrelationID injects the correlation id into the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCorrelationID, correlationID)
}
