package middleware

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	apiKeyKey
)

// RequestIDFromContext returns the id set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// APIKeyFromContext returns the key accepted by Auth, or "".
func APIKeyFromContext(ctx context.Context) string {
	v, _ := ctx.Value(apiKeyKey).(string)
	return v
}
