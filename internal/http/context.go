package http

import "context"

type contextKey string

const (
	requestIDContextKey contextKey = "medfront/request-id"
	sessionIDContextKey contextKey = "medfront/session-id"
)

// RequestIDFromContext extracts the request identifier from the context when available.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDContextKey).(string); ok {
		return value
	}
	return ""
}

// SessionIDFromContext extracts the browser session identifier set by the session middleware.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(sessionIDContextKey).(string); ok {
		return value
	}
	return ""
}
