package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID   contextKey = "request_id"
	keyUserID      contextKey = "user_id"
	keyExecutionID contextKey = "execution_id"
)

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithUserID adds the caller identity to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts the caller identity from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithExecutionID adds execution ID to context.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, keyExecutionID, executionID)
}

// ExecutionID extracts execution ID from context.
func ExecutionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyExecutionID).(string)
	return v, ok && v != ""
}
