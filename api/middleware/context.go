package middleware

import "context"

type contextKey string

const ctxClientID contextKey = "client_id"

const clientIDHeader = "X-Client-Id"

// ClientIDFromContext returns the caller identity used to scope idempotency
// records and rate limits.
func ClientIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxClientID).(string); ok {
		return v
	}
	return ""
}

// WithClientID injects the caller identity into the context.
func WithClientID(ctx context.Context, clientID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxClientID, clientID)
}
