package audit

import (
	"context"
	"fmt"
)

// History limits match what the terminal can usefully show on one screen.
const (
	DefaultHistoryLimit  = 10
	DefaultActivityLimit = 20
)

// Store is the slice of the persistence gateway the recorder reads from.
// Appends happen inside the owning service's transaction, not here, so that
// a record and the state change it describes commit together.
type Store interface {
	ListTransactions(ctx context.Context, accountNumber string, limit int) ([]TransactionRecord, error)
	ListActivities(ctx context.Context, limit int) ([]ActivityRecord, error)
}

// Recorder serves the read side of the audit trail: account histories for
// cardholders, the activity log for technicians.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// TransactionHistory returns the newest transactions for an account, most
// recent first, capped at DefaultHistoryLimit.
func (r *Recorder) TransactionHistory(ctx context.Context, accountNumber string) ([]TransactionRecord, error) {
	records, err := r.store.ListTransactions(ctx, accountNumber, DefaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return records, nil
}

// ActivityLog returns the newest technician activities, most recent first,
// capped at DefaultActivityLimit.
func (r *Recorder) ActivityLog(ctx context.Context) ([]ActivityRecord, error) {
	records, err := r.store.ListActivities(ctx, DefaultActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return records, nil
}
