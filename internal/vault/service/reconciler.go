package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	"cashpoint/internal/platform/metrics"
	"cashpoint/internal/vault/models"
	"cashpoint/pkg/money"
	"cashpoint/pkg/requestcontext"
)

// OperationRequest asks the reconciler to commit one cash-moving operation.
// The allocation carries the target amount; AccountNumber is set for
// dispenses only.
type OperationRequest struct {
	Kind          models.OperationKind
	Allocation    *models.Allocation
	AccountNumber string
}

// Result reports what a commit attempt did. Balance fields are meaningful
// for dispenses only.
type Result struct {
	Outcome         models.Outcome
	Kind            models.OperationKind
	Amount          money.Amount
	Breakdown       string
	PreviousCash    money.Amount
	NewCash         money.Amount
	PreviousBalance money.Amount
	NewBalance      money.Amount
}

// Reconciler owns the note ledger and the commit protocol for every
// operation that moves physical notes: cardholder dispenses, technician
// refills and collections.
//
// Commit never mutates live state directly. It stages the operation on
// copies, persists everything in one store transaction, and only then swaps
// the copies in. A failure at any point leaves the live ledger, machine
// state, and accounts exactly as they were.
type Reconciler struct {
	mu       sync.RWMutex
	ledger   *models.NoteLedger
	machine  MachinePort
	accounts AccountPort
	gateway  Gateway
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewReconciler builds a reconciler around the loaded note ledger.
func NewReconciler(ledger *models.NoteLedger, machine MachinePort, accounts AccountPort, gateway Gateway, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:   ledger,
		machine:  machine,
		accounts: accounts,
		gateway:  gateway,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Commit validates, stages, persists, and finally publishes one operation.
func (r *Reconciler) Commit(ctx context.Context, req OperationRequest) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Allocation == nil {
		return r.reject(ctx, req, fmt.Errorf("%w: no note selection", models.ErrInvalidNoteCount))
	}
	if req.Kind == models.KindDispense && req.AccountNumber == "" {
		return r.reject(ctx, req, fmt.Errorf("dispense requires an account number"))
	}

	if err := ValidateAllocation(r.ledger, req.Allocation, req.Kind); err != nil {
		return r.reject(ctx, req, err)
	}

	amount := req.Allocation.Target()
	breakdown := req.Allocation.Breakdown()
	now := requestcontext.Now(ctx)

	// Stage the note movement on a clone. Validation already proved the
	// counts fit, so a failure here means the ledger changed underneath us.
	staged := r.ledger.Clone()
	for _, d := range req.Allocation.Denominations() {
		count := req.Allocation.Count(d)
		var err error
		if req.Kind.Outbound() {
			err = staged.Decrease(d, count)
		} else {
			err = staged.Increase(d, count)
		}
		if err != nil {
			return r.reject(ctx, req, err)
		}
	}

	delta := amount
	if req.Kind.Outbound() {
		delta = money.Zero.Sub(amount)
	}
	previousState := r.machine.Snapshot()
	newState := previousState.ApplyCashDelta(delta, now)

	// The reconciliation proof: the new cash counter must equal the staged
	// cassette value before anything persists.
	if newState.Cash != staged.TotalValue() {
		err := fmt.Errorf("cash counter %s diverges from note total %s", newState.Cash, staged.TotalValue())
		r.logger.ErrorContext(ctx, "reconciliation failed",
			"operation_id", requestcontext.OperationID(ctx), "kind", req.Kind, "error", err)
		return &Result{Outcome: models.OutcomeRejected, Kind: req.Kind, Amount: amount}, err
	}

	var (
		account  *accountmodels.Account
		previous money.Amount
	)
	if req.Kind == models.KindDispense {
		snap, err := r.accounts.Snapshot(ctx, req.AccountNumber)
		if err != nil {
			return r.reject(ctx, req, err)
		}
		previous = snap.Balance
		if err := snap.CanDebit(amount); err != nil {
			if errors.Is(err, accountmodels.ErrInsufficientFunds) {
				err = fmt.Errorf("%w: balance %s cannot cover %s", models.ErrInsufficientFunds, previous, amount)
			}
			return r.reject(ctx, req, err)
		}
		snap.ApplyDebit(amount)
		account = snap
	}

	err := r.gateway.RunInTx(ctx, func(txCtx context.Context) error {
		if account != nil {
			if err := r.gateway.SaveAccount(txCtx, account); err != nil {
				return err
			}
		}
		if err := r.gateway.SaveMachineState(txCtx, newState); err != nil {
			return err
		}
		if err := r.gateway.SaveNoteStock(txCtx, staged.Snapshot()); err != nil {
			return err
		}
		if account != nil {
			return r.gateway.AppendTransaction(txCtx, audit.TransactionRecord{
				AccountNumber:   account.Number,
				AccountHolder:   account.Holder,
				Type:            audit.TypeWithdrawal,
				Amount:          amount,
				PreviousBalance: previous,
				NewBalance:      account.Balance,
				NoteBreakdown:   breakdown,
				CreatedAt:       now,
			})
		}
		return r.gateway.AppendActivity(txCtx, r.activityRecord(req.Kind, amount, breakdown, previousState.Cash, newState.Cash, now))
	})
	if err != nil {
		if r.metrics != nil {
			r.metrics.IncOperationRolledBack()
		}
		r.logger.ErrorContext(ctx, "operation rolled back",
			"operation_id", requestcontext.OperationID(ctx),
			"kind", req.Kind, "amount", amount.String(), "error", err)
		return &Result{Outcome: models.OutcomeRolledBack, Kind: req.Kind, Amount: amount},
			fmt.Errorf("%w: %w", models.ErrPersistence, err)
	}

	// Persisted; now the copies become the live state.
	r.ledger = staged
	r.machine.Commit(newState)
	if account != nil {
		r.accounts.Commit(account)
	}

	if r.metrics != nil {
		r.metrics.IncOperationCommitted(string(req.Kind))
	}
	r.logger.InfoContext(ctx, "operation committed",
		"operation_id", requestcontext.OperationID(ctx),
		"kind", req.Kind, "amount", amount.String(), "breakdown", breakdown,
		"cash", newState.Cash.String())

	result := &Result{
		Outcome:      models.OutcomeCommitted,
		Kind:         req.Kind,
		Amount:       amount,
		Breakdown:    breakdown,
		PreviousCash: previousState.Cash,
		NewCash:      newState.Cash,
	}
	if account != nil {
		result.PreviousBalance = previous
		result.NewBalance = account.Balance
	}
	return result, nil
}

// activityRecord describes a technician cash movement for the activity log.
// Dispenses never reach here; they are logged as account transactions.
func (r *Reconciler) activityRecord(kind models.OperationKind, amount money.Amount, breakdown string, previousCash, newCash money.Amount, now time.Time) audit.ActivityRecord {
	rec := audit.ActivityRecord{
		Amount:        amount.Cents(),
		PreviousValue: previousCash.Cents(),
		NewValue:      newCash.Cents(),
		CreatedAt:     now,
	}
	if kind == models.KindCollect {
		rec.Type = audit.ActivityCashCollection
		rec.Description = "Cash collected from ATM - notes: " + breakdown
	} else {
		rec.Type = audit.ActivityCashRefill
		rec.Description = "ATM cash refilled with notes: " + breakdown
	}
	return rec
}

// CashTotal returns the cassette's current value.
func (r *Reconciler) CashTotal() money.Amount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.TotalValue()
}

// StockSnapshot copies the current per-denomination quantities.
func (r *Reconciler) StockSnapshot() map[models.Denomination]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Snapshot()
}

// Denominations lists the stocked denominations, highest first.
func (r *Reconciler) Denominations() []models.Denomination {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.Denominations()
}

// QuantityOf returns the cassette count for one denomination.
func (r *Reconciler) QuantityOf(d models.Denomination) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ledger.QuantityOf(d)
}

func (r *Reconciler) reject(ctx context.Context, req OperationRequest, err error) (*Result, error) {
	if r.metrics != nil {
		r.metrics.IncOperationRejected(rejectionReason(err))
	}
	var amount money.Amount
	if req.Allocation != nil {
		amount = req.Allocation.Target()
	}
	r.logger.WarnContext(ctx, "operation rejected",
		"operation_id", requestcontext.OperationID(ctx),
		"kind", req.Kind, "amount", amount.String(), "reason", err.Error())
	return &Result{Outcome: models.OutcomeRejected, Kind: req.Kind, Amount: amount}, err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownDenomination):
		return "unknown_denomination"
	case errors.Is(err, models.ErrInvalidNoteCount):
		return "invalid_count"
	case errors.Is(err, models.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, models.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrInsufficientFunds), errors.Is(err, accountmodels.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "invalid_request"
	}
}
