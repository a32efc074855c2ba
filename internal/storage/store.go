// Package storage defines the persistence gateway the terminal runs on.
//
// The terminal loads its working state (accounts, machine state, note stock)
// once at startup, operates on it in memory, and writes back through the
// gateway as operations commit. Implementations live in the memory, sqlite,
// and postgres subpackages; services depend on narrow slices of this
// interface, declared on the consumer side.
package storage

import (
	"context"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	authmodels "cashpoint/internal/auth/models"
	machinemodels "cashpoint/internal/machine/models"
	vaultmodels "cashpoint/internal/vault/models"
)

// Gateway is the full persistence surface. RunInTx scopes every nested
// gateway call to one transaction; the SQL implementations carry the
// transaction through context, the in-memory one snapshots and restores on
// failure. A reconciled commit (balance + machine state + stock + audit row)
// is exactly one RunInTx.
type Gateway interface {
	LoadAccounts(ctx context.Context) ([]*accountmodels.Account, error)
	LoadMachineState(ctx context.Context) (machinemodels.State, error)
	LoadNoteStock(ctx context.Context) (map[vaultmodels.Denomination]int, error)

	CreateAccount(ctx context.Context, account *accountmodels.Account) error
	SaveAccount(ctx context.Context, account *accountmodels.Account) error
	SaveMachineState(ctx context.Context, state machinemodels.State) error
	SaveNoteStock(ctx context.Context, stock map[vaultmodels.Denomination]int) error

	AppendTransaction(ctx context.Context, record audit.TransactionRecord) error
	AppendActivity(ctx context.Context, record audit.ActivityRecord) error
	ListTransactions(ctx context.Context, accountNumber string, limit int) ([]audit.TransactionRecord, error)
	ListActivities(ctx context.Context, limit int) ([]audit.ActivityRecord, error)

	FindTechnician(ctx context.Context, username string) (*authmodels.Technician, error)

	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	Close() error
}
