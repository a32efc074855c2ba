// Package memory provides the in-memory persistence gateway. It backs unit
// tests and ephemeral demo runs; nothing survives process exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	authmodels "cashpoint/internal/auth/models"
	machinemodels "cashpoint/internal/machine/models"
	"cashpoint/internal/storage"
	vaultmodels "cashpoint/internal/vault/models"
	"cashpoint/pkg/platform/sentinel"
)

// Gateway implements storage.Gateway over plain maps. Values are copied on
// the way in and out so callers can never alias store state.
type Gateway struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	accounts     map[string]accountmodels.Account
	machine      machinemodels.State
	stock        map[vaultmodels.Denomination]int
	transactions []audit.TransactionRecord
	activities   []audit.ActivityRecord
	technicians  map[string]authmodels.Technician

	nextTransactionID int64
	nextActivityID    int64
}

// New builds a gateway pre-populated with seed data.
func New(seed storage.SeedData) *Gateway {
	g := &Gateway{
		accounts:          make(map[string]accountmodels.Account, len(seed.Accounts)),
		stock:             make(map[vaultmodels.Denomination]int, len(seed.NoteStock)),
		technicians:       make(map[string]authmodels.Technician, len(seed.Technicians)),
		machine:           seed.Machine,
		nextTransactionID: 1,
		nextActivityID:    1,
	}
	for _, a := range seed.Accounts {
		g.accounts[a.Number] = *a
	}
	for d, q := range seed.NoteStock {
		g.stock[d] = q
	}
	for _, t := range seed.Technicians {
		g.technicians[t.Username] = t
	}
	return g
}

func (g *Gateway) LoadAccounts(_ context.Context) ([]*accountmodels.Account, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	accounts := make([]*accountmodels.Account, 0, len(g.accounts))
	for _, a := range g.accounts {
		c := a
		accounts = append(accounts, &c)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Number < accounts[j].Number })
	return accounts, nil
}

func (g *Gateway) LoadMachineState(_ context.Context) (machinemodels.State, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.machine, nil
}

func (g *Gateway) LoadNoteStock(_ context.Context) (map[vaultmodels.Denomination]int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stock := make(map[vaultmodels.Denomination]int, len(g.stock))
	for d, q := range g.stock {
		stock[d] = q
	}
	return stock, nil
}

func (g *Gateway) CreateAccount(_ context.Context, account *accountmodels.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.accounts[account.Number]; exists {
		return fmt.Errorf("account %s: %w", account.Number, sentinel.ErrConflict)
	}
	g.accounts[account.Number] = *account
	return nil
}

func (g *Gateway) SaveAccount(_ context.Context, account *accountmodels.Account) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.accounts[account.Number]; !exists {
		return fmt.Errorf("account %s: %w", account.Number, sentinel.ErrNotFound)
	}
	g.accounts[account.Number] = *account
	return nil
}

func (g *Gateway) SaveMachineState(_ context.Context, state machinemodels.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.machine = state
	return nil
}

func (g *Gateway) SaveNoteStock(_ context.Context, stock map[vaultmodels.Denomination]int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for d, q := range stock {
		g.stock[d] = q
	}
	return nil
}

func (g *Gateway) AppendTransaction(_ context.Context, record audit.TransactionRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	record.ID = g.nextTransactionID
	g.nextTransactionID++
	g.transactions = append(g.transactions, record)
	return nil
}

func (g *Gateway) AppendActivity(_ context.Context, record audit.ActivityRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	record.ID = g.nextActivityID
	g.nextActivityID++
	g.activities = append(g.activities, record)
	return nil
}

func (g *Gateway) ListTransactions(_ context.Context, accountNumber string, limit int) ([]audit.TransactionRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var records []audit.TransactionRecord
	// Appends are in id order; walk backwards for newest first.
	for i := len(g.transactions) - 1; i >= 0 && len(records) < limit; i-- {
		if g.transactions[i].AccountNumber == accountNumber {
			records = append(records, g.transactions[i])
		}
	}
	return records, nil
}

func (g *Gateway) ListActivities(_ context.Context, limit int) ([]audit.ActivityRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var records []audit.ActivityRecord
	for i := len(g.activities) - 1; i >= 0 && len(records) < limit; i-- {
		records = append(records, g.activities[i])
	}
	return records, nil
}

func (g *Gateway) FindTechnician(_ context.Context, username string) (*authmodels.Technician, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.technicians[username]
	if !ok {
		return nil, fmt.Errorf("technician %s: %w", username, sentinel.ErrNotFound)
	}
	return &t, nil
}

// RunInTx gives the same all-or-nothing contract as the SQL gateways: the
// whole store is snapshotted up front and restored if fn fails, so a failing
// multi-step mutation leaves no partial writes behind. Transactions do not
// nest.
func (g *Gateway) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	g.txMu.Lock()
	defer g.txMu.Unlock()

	snap := g.snapshot()
	if err := fn(ctx); err != nil {
		g.restore(snap)
		return err
	}
	return nil
}

func (g *Gateway) Close() error {
	return nil
}

type snapshot struct {
	accounts          map[string]accountmodels.Account
	machine           machinemodels.State
	stock             map[vaultmodels.Denomination]int
	transactions      []audit.TransactionRecord
	activities        []audit.ActivityRecord
	nextTransactionID int64
	nextActivityID    int64
}

func (g *Gateway) snapshot() snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	accounts := make(map[string]accountmodels.Account, len(g.accounts))
	for n, a := range g.accounts {
		accounts[n] = a
	}
	stock := make(map[vaultmodels.Denomination]int, len(g.stock))
	for d, q := range g.stock {
		stock[d] = q
	}
	return snapshot{
		accounts:          accounts,
		machine:           g.machine,
		stock:             stock,
		transactions:      append([]audit.TransactionRecord(nil), g.transactions...),
		activities:        append([]audit.ActivityRecord(nil), g.activities...),
		nextTransactionID: g.nextTransactionID,
		nextActivityID:    g.nextActivityID,
	}
}

func (g *Gateway) restore(snap snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts = snap.accounts
	g.machine = snap.machine
	g.stock = snap.stock
	g.transactions = snap.transactions
	g.activities = snap.activities
	g.nextTransactionID = snap.nextTransactionID
	g.nextActivityID = snap.nextActivityID
}
