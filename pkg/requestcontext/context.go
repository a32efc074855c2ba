// Package requestcontext provides context accessors for operation-scoped values.
//
// The terminal loop sets these per user action; services read them without
// knowing anything about the UI. Keeping the accessors here means services
// import only what they need.
//
// Usage in services (read values):
//
//	opID := requestcontext.OperationID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in the terminal loop (set values):
//
//	ctx = requestcontext.WithOperationID(ctx, uuid.NewString())
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	operationIDKey struct{}
	sessionIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need context.WithValue directly.
var (
	ContextKeyOperationID = operationIDKey{}
	ContextKeySessionID   = sessionIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// OperationID retrieves the correlation id for the current terminal action.
// Returns "" if not set.
func OperationID(ctx context.Context) string {
	if opID, ok := ctx.Value(ContextKeyOperationID).(string); ok {
		return opID
	}
	return ""
}

// WithOperationID injects an operation correlation id into the context.
func WithOperationID(ctx context.Context, operationID string) context.Context {
	return context.WithValue(ctx, ContextKeyOperationID, operationID)
}

// SessionID retrieves the active session id from the context.
// Returns "" if no session is bound.
func SessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(ContextKeySessionID).(string); ok {
		return sessionID
	}
	return ""
}

// WithSessionID binds a session id to the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// Now retrieves the operation-scoped time from context.
// Falls back to time.Now() if not set, so non-test callers never stamp zero
// times onto audit records.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Tests use this to pin
// audit timestamps; batch maintenance could use it to stamp one consistent
// time across an operation.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
