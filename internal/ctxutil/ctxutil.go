// Package ctxutil provides shared context key accessors.
//
// This package exists so the event stream, the reconciler and the notify
// broker can share one correlation identity per inbound event without
// importing each other.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	keyCorrelationID contextKey = "correlation_id"
	keySessionID     contextKey = "session_id"
)

// WithCorrelationID returns a new context carrying the given correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyCorrelationID, id)
}

// CorrelationID extracts the correlation id from the context, or "" when
// none is set.
func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(keyCorrelationID).(string); ok {
		return v
	}
	return ""
}

// EnsureCorrelationID returns a context that carries a correlation id,
// minting a fresh one when the incoming context has none. Everything
// processed downstream of one inbound event shares the same id.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}

// WithSessionID returns a new context carrying the tenant session id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, keySessionID, sessionID)
}

// SessionID extracts the tenant session id from the context, or "" when
// none is set.
func SessionID(ctx context.Context) string {
	if v, ok := ctx.Value(keySessionID).(string); ok {
		return v
	}
	return ""
}
