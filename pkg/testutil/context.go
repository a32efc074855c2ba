package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"

	"cashpoint/pkg/requestcontext"
)

// OperationContext returns a context carrying a fresh operation id and a
// pinned clock. This simulates what the terminal loop does before invoking a
// service, so service tests see the same context shape as production calls.
func OperationContext(at time.Time) context.Context {
	ctx := requestcontext.WithOperationID(context.Background(), uuid.NewString())
	return requestcontext.WithTime(ctx, at)
}

// ContextAt pins only the operation clock, for tests that assert on
// persisted timestamps.
func ContextAt(at time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), at)
}
