// Package service implements the account operations that move no physical
// notes: deposits, transfers, PIN changes, account opening, balance and
// history queries. Withdrawals live in the vault reconciler, which debits
// accounts through this service's Snapshot/Commit port.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	"cashpoint/internal/platform/metrics"
	"cashpoint/pkg/money"
	"cashpoint/pkg/platform/sentinel"
	"cashpoint/pkg/requestcontext"
)

// Store is the slice of the persistence gateway account operations need.
type Store interface {
	LoadAccounts(ctx context.Context) ([]*models.Account, error)
	CreateAccount(ctx context.Context, account *models.Account) error
	SaveAccount(ctx context.Context, account *models.Account) error
	AppendTransaction(ctx context.Context, record audit.TransactionRecord) error
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service owns the live account instances. Accounts load once at startup;
// every mutation stages on a clone, persists with its audit record in one
// transaction, and only then swaps the clone in, so a store failure never
// leaves a half-applied balance in memory.
type Service struct {
	mu      sync.Mutex
	store   Store
	history *audit.Recorder
	logger  *slog.Logger
	metrics *metrics.Metrics

	accounts map[string]*models.Account
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New loads every account from the store and keeps them live for the life of
// the process.
func New(ctx context.Context, store Store, history *audit.Recorder, opts ...Option) (*Service, error) {
	s := &Service{
		store:    store,
		history:  history,
		accounts: make(map[string]*models.Account),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	accounts, err := store.LoadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	for _, a := range accounts {
		s.accounts[a.Number] = a
	}
	return s, nil
}

// Snapshot returns an independent copy of a live account. The reconciler
// stages withdrawal debits on it; the auth service checks PINs against it.
func (s *Service) Snapshot(_ context.Context, number string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[number]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", number, sentinel.ErrNotFound)
	}
	return a.Clone(), nil
}

// Commit publishes a staged account as the live instance. Callers invoke it
// only after the staged state has persisted.
func (s *Service) Commit(account *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.Number] = account
}

// Balance returns the live balance of an account.
func (s *Service) Balance(ctx context.Context, number string) (money.Amount, error) {
	a, err := s.Snapshot(ctx, number)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

// Deposit credits an envelope deposit. No notes enter the cassette, so the
// machine's cash counter is untouched; the new balance and its DEPOSIT record
// commit in one transaction.
func (s *Service) Deposit(ctx context.Context, number string, amount money.Amount) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.accounts[number]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", number, sentinel.ErrNotFound)
	}
	if err := live.CanCredit(amount); err != nil {
		return nil, err
	}

	staged := live.Clone()
	previous := staged.Balance
	staged.ApplyCredit(amount)

	now := requestcontext.Now(ctx)
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.SaveAccount(txCtx, staged); err != nil {
			return err
		}
		return s.store.AppendTransaction(txCtx, audit.TransactionRecord{
			AccountNumber:   staged.Number,
			AccountHolder:   staged.Holder,
			Type:            audit.TypeDeposit,
			Amount:          amount,
			PreviousBalance: previous,
			NewBalance:      staged.Balance,
			CreatedAt:       now,
		})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "deposit rolled back",
			"operation_id", requestcontext.OperationID(ctx),
			"account", number, "amount", amount.String(), "error", err)
		return nil, fmt.Errorf("persist deposit: %w", err)
	}

	s.accounts[number] = staged
	if s.metrics != nil {
		s.metrics.IncOperationCommitted("deposit")
	}
	s.logger.InfoContext(ctx, "deposit committed",
		"operation_id", requestcontext.OperationID(ctx),
		"account", number, "amount", amount.String(), "balance", staged.Balance.String())
	return staged.Clone(), nil
}

// Transfer moves funds between two accounts: both balances and both audit
// legs (TRANSFER_SENT, TRANSFER_RECEIVED) commit in one transaction, or none
// of them do.
func (s *Service) Transfer(ctx context.Context, from, to string, amount money.Amount) (*models.Account, error) {
	if from == to {
		return nil, fmt.Errorf("%w: %s", models.ErrSameAccount, from)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.accounts[from]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", from, sentinel.ErrNotFound)
	}
	recipient, ok := s.accounts[to]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", to, sentinel.ErrNotFound)
	}
	if err := sender.CanDebit(amount); err != nil {
		return nil, err
	}
	if err := recipient.CanCredit(amount); err != nil {
		return nil, err
	}

	stagedFrom := sender.Clone()
	stagedTo := recipient.Clone()
	previousFrom := stagedFrom.Balance
	previousTo := stagedTo.Balance
	stagedFrom.ApplyDebit(amount)
	stagedTo.ApplyCredit(amount)

	now := requestcontext.Now(ctx)
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.SaveAccount(txCtx, stagedFrom); err != nil {
			return err
		}
		if err := s.store.SaveAccount(txCtx, stagedTo); err != nil {
			return err
		}
		if err := s.store.AppendTransaction(txCtx, audit.TransactionRecord{
			AccountNumber:   stagedFrom.Number,
			AccountHolder:   stagedFrom.Holder,
			Type:            audit.TypeTransferSent,
			Amount:          amount,
			PreviousBalance: previousFrom,
			NewBalance:      stagedFrom.Balance,
			CreatedAt:       now,
		}); err != nil {
			return err
		}
		return s.store.AppendTransaction(txCtx, audit.TransactionRecord{
			AccountNumber:   stagedTo.Number,
			AccountHolder:   stagedTo.Holder,
			Type:            audit.TypeTransferReceived,
			Amount:          amount,
			PreviousBalance: previousTo,
			NewBalance:      stagedTo.Balance,
			CreatedAt:       now,
		})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "transfer rolled back",
			"operation_id", requestcontext.OperationID(ctx),
			"from", from, "to", to, "amount", amount.String(), "error", err)
		return nil, fmt.Errorf("persist transfer: %w", err)
	}

	s.accounts[from] = stagedFrom
	s.accounts[to] = stagedTo
	if s.metrics != nil {
		s.metrics.IncOperationCommitted("transfer")
	}
	s.logger.InfoContext(ctx, "transfer committed",
		"operation_id", requestcontext.OperationID(ctx),
		"from", from, "to", to, "amount", amount.String())
	return stagedFrom.Clone(), nil
}

// ChangePIN validates and persists a new PIN, recording a PIN_CHANGE entry
// with the balance unchanged. The PIN itself never reaches the logs.
func (s *Service) ChangePIN(ctx context.Context, number, newPIN string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.accounts[number]
	if !ok {
		return fmt.Errorf("account %s: %w", number, sentinel.ErrNotFound)
	}

	staged := live.Clone()
	if err := staged.ChangePIN(newPIN); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.SaveAccount(txCtx, staged); err != nil {
			return err
		}
		return s.store.AppendTransaction(txCtx, audit.TransactionRecord{
			AccountNumber:   staged.Number,
			AccountHolder:   staged.Holder,
			Type:            audit.TypePINChange,
			Amount:          money.Zero,
			PreviousBalance: staged.Balance,
			NewBalance:      staged.Balance,
			CreatedAt:       now,
		})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "pin change rolled back",
			"operation_id", requestcontext.OperationID(ctx),
			"account", number, "error", err)
		return fmt.Errorf("persist pin change: %w", err)
	}

	s.accounts[number] = staged
	if s.metrics != nil {
		s.metrics.IncOperationCommitted("pin_change")
	}
	s.logger.InfoContext(ctx, "pin changed",
		"operation_id", requestcontext.OperationID(ctx), "account", number)
	return nil
}

// CreateAccount opens a new account with an optional opening balance. The
// number must be unused; the store enforces the same uniqueness, so a race
// with an existing row still surfaces as ErrConflict.
func (s *Service) CreateAccount(ctx context.Context, number, holder string, opening money.Amount, pin string) (*models.Account, error) {
	account, err := models.NewAccount(number, holder, opening, pin)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.Number]; exists {
		return nil, fmt.Errorf("account %s: %w", account.Number, sentinel.ErrConflict)
	}

	now := requestcontext.Now(ctx)
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateAccount(txCtx, account); err != nil {
			return err
		}
		return s.store.AppendTransaction(txCtx, audit.TransactionRecord{
			AccountNumber:   account.Number,
			AccountHolder:   account.Holder,
			Type:            audit.TypeAccountCreated,
			Amount:          opening,
			PreviousBalance: money.Zero,
			NewBalance:      account.Balance,
			CreatedAt:       now,
		})
	})
	if err != nil {
		if !isConflict(err) {
			s.logger.ErrorContext(ctx, "account creation rolled back",
				"operation_id", requestcontext.OperationID(ctx),
				"account", account.Number, "error", err)
		}
		return nil, fmt.Errorf("create account %s: %w", account.Number, err)
	}

	s.accounts[account.Number] = account
	if s.metrics != nil {
		s.metrics.IncOperationCommitted("account_created")
	}
	s.logger.InfoContext(ctx, "account created",
		"operation_id", requestcontext.OperationID(ctx),
		"account", account.Number, "holder", account.Holder,
		"balance", account.Balance.String())
	return account.Clone(), nil
}

// Count returns how many accounts are open, for the diagnostics screen.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// History returns the newest transactions for an account, most recent first.
func (s *Service) History(ctx context.Context, number string) ([]audit.TransactionRecord, error) {
	if _, err := s.Snapshot(ctx, number); err != nil {
		return nil, err
	}
	return s.history.TransactionHistory(ctx, number)
}

func isConflict(err error) bool {
	return errors.Is(err, sentinel.ErrConflict)
}
