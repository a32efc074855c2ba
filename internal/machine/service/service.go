// Package service owns the machine's own condition: the persisted cash
// counter and the receipt printer supplies. Cash moves only through the vault
// reconciler, which drives this service's Snapshot/Commit port; paper and ink
// are maintained here directly.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cashpoint/internal/audit"
	"cashpoint/internal/machine/models"
	"cashpoint/internal/platform/metrics"
	"cashpoint/pkg/requestcontext"
)

// Store is the slice of the persistence gateway machine upkeep needs.
type Store interface {
	LoadMachineState(ctx context.Context) (models.State, error)
	SaveMachineState(ctx context.Context, state models.State) error
	AppendActivity(ctx context.Context, record audit.ActivityRecord) error
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service keeps the live machine state, loaded once at startup. Supply
// refills persist before the live state moves, the same stage-persist-swap
// protocol every mutation in this system follows.
type Service struct {
	mu      sync.Mutex
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	state models.State
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

// New loads the machine state and keeps it live.
func New(ctx context.Context, store Store, opts ...Option) (*Service, error) {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	state, err := store.LoadMachineState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load machine state: %w", err)
	}
	s.state = state
	return s, nil
}

// Snapshot returns the current machine state for the reconciler to stage on.
func (s *Service) Snapshot() models.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Commit publishes a staged state as live. Callers invoke it only after the
// staged state has persisted.
func (s *Service) Commit(state models.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// RefillPaper loads sheets into the receipt printer and records the
// PAPER_REFILL activity in the same transaction.
func (s *Service) RefillPaper(ctx context.Context, sheets int) (models.State, error) {
	return s.refillSupply(ctx, "paper", sheets)
}

// RefillInk loads ink units into the receipt printer and records the
// INK_REFILL activity in the same transaction.
func (s *Service) RefillInk(ctx context.Context, units int) (models.State, error) {
	return s.refillSupply(ctx, "ink", units)
}

func (s *Service) refillSupply(ctx context.Context, supply string, count int) (models.State, error) {
	if count <= 0 {
		return models.State{}, fmt.Errorf("%w: %s %d", models.ErrInvalidSupplyCount, supply, count)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	var staged models.State
	var record audit.ActivityRecord
	if supply == "paper" {
		staged = s.state.ApplyPaperRefill(count, now)
		record = audit.ActivityRecord{
			Type:          audit.ActivityPaperRefill,
			Amount:        int64(count),
			Description:   "Paper refilled",
			PreviousValue: int64(s.state.PaperSheets),
			NewValue:      int64(staged.PaperSheets),
			CreatedAt:     now,
		}
	} else {
		staged = s.state.ApplyInkRefill(count, now)
		record = audit.ActivityRecord{
			Type:          audit.ActivityInkRefill,
			Amount:        int64(count),
			Description:   "Ink refilled",
			PreviousValue: int64(s.state.InkUnits),
			NewValue:      int64(staged.InkUnits),
			CreatedAt:     now,
		}
	}

	err := s.store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.SaveMachineState(txCtx, staged); err != nil {
			return err
		}
		return s.store.AppendActivity(txCtx, record)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "supply refill rolled back",
			"operation_id", requestcontext.OperationID(ctx),
			"supply", supply, "count", count, "error", err)
		return models.State{}, fmt.Errorf("persist %s refill: %w", supply, err)
	}

	s.state = staged
	s.logger.InfoContext(ctx, "supply refilled",
		"operation_id", requestcontext.OperationID(ctx),
		"supply", supply, "count", count,
		"paper", staged.PaperSheets, "ink", staged.InkUnits)
	return staged, nil
}

// DebitReceipt consumes one sheet and one ink unit for a printed receipt.
// Receipts are best effort: when supplies or the store fall short it reports
// false and the parent operation carries on, it does not fail.
func (s *Service) DebitReceipt(ctx context.Context) (models.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanPrintReceipt() {
		if s.metrics != nil {
			s.metrics.IncReceiptSkipped()
		}
		s.logger.WarnContext(ctx, "receipt skipped",
			"operation_id", requestcontext.OperationID(ctx),
			"paper", s.state.PaperSheets, "ink", s.state.InkUnits)
		return s.state, false
	}

	staged := s.state.ApplyReceiptDebit(requestcontext.Now(ctx))
	if err := s.store.SaveMachineState(ctx, staged); err != nil {
		if s.metrics != nil {
			s.metrics.IncReceiptSkipped()
		}
		s.logger.WarnContext(ctx, "receipt skipped, supplies not persisted",
			"operation_id", requestcontext.OperationID(ctx), "error", err)
		return s.state, false
	}

	s.state = staged
	if s.metrics != nil {
		s.metrics.IncReceiptPrinted()
	}
	return staged, true
}

// Status is the machine's slice of the diagnostics screen: its own state
// plus the operation counters. Counter gathering is best effort.
type Status struct {
	State    models.State
	Counters []string
}

func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	status := Status{State: state}
	if s.metrics != nil {
		counters, err := s.metrics.Snapshot()
		if err != nil {
			s.logger.WarnContext(ctx, "metrics snapshot failed", "error", err)
		} else {
			status.Counters = counters
		}
	}
	return status
}
