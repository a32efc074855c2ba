// Package service implements the cash-handling core: allocation validation
// and the reconciled commit protocol that keeps the machine's cash counter,
// the note cassette, account balances, and the audit trail in agreement.
package service

import (
	"context"
	"log/slog"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	machinemodels "cashpoint/internal/machine/models"
	"cashpoint/internal/platform/metrics"
	vaultmodels "cashpoint/internal/vault/models"
)

// AccountPort is the reconciler's view of live accounts. Snapshot returns an
// independent copy to stage a debit on; Commit replaces the live instance
// once the debit has persisted.
type AccountPort interface {
	Snapshot(ctx context.Context, number string) (*accountmodels.Account, error)
	Commit(account *accountmodels.Account)
}

// MachinePort is the reconciler's view of the machine state. Same two-phase
// contract as AccountPort.
type MachinePort interface {
	Snapshot() machinemodels.State
	Commit(state machinemodels.State)
}

// Gateway is the slice of the persistence gateway a reconciled commit needs.
type Gateway interface {
	SaveAccount(ctx context.Context, account *accountmodels.Account) error
	SaveMachineState(ctx context.Context, state machinemodels.State) error
	SaveNoteStock(ctx context.Context, stock map[vaultmodels.Denomination]int) error
	AppendTransaction(ctx context.Context, record audit.TransactionRecord) error
	AppendActivity(ctx context.Context, record audit.ActivityRecord) error
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Option configures a Reconciler.
type Option func(r *Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}
