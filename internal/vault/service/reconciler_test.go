package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	machinemodels "cashpoint/internal/machine/models"
	"cashpoint/internal/platform/logger"
	"cashpoint/internal/platform/metrics"
	"cashpoint/internal/storage"
	"cashpoint/internal/storage/memory"
	"cashpoint/internal/vault/models"
	"cashpoint/pkg/money"
	"cashpoint/pkg/platform/sentinel"
	"cashpoint/pkg/testutil"
)

// liveAccounts stands in for the account service: a map of live instances
// behind the two-phase Snapshot/Commit port.
type liveAccounts struct {
	byNumber  map[string]*accountmodels.Account
	committed int
}

func (p *liveAccounts) Snapshot(_ context.Context, number string) (*accountmodels.Account, error) {
	a, ok := p.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", number, sentinel.ErrNotFound)
	}
	return a.Clone(), nil
}

func (p *liveAccounts) Commit(account *accountmodels.Account) {
	p.byNumber[account.Number] = account
	p.committed++
}

type liveMachine struct {
	state     machinemodels.State
	committed int
}

func (p *liveMachine) Snapshot() machinemodels.State { return p.state }

func (p *liveMachine) Commit(state machinemodels.State) {
	p.state = state
	p.committed++
}

// faultyGateway wraps the in-memory store and fails the note-stock write on
// demand, which lands mid-transaction and must trigger a full rollback.
type faultyGateway struct {
	*memory.Gateway
	failStockWrite bool
}

func (g *faultyGateway) SaveNoteStock(ctx context.Context, stock map[models.Denomination]int) error {
	if g.failStockWrite {
		return errors.New("disk full")
	}
	return g.Gateway.SaveNoteStock(ctx, stock)
}

type ReconcilerSuite struct {
	suite.Suite
	ctx      context.Context
	gateway  *faultyGateway
	accounts *liveAccounts
	machine  *liveMachine
	rec      *Reconciler
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	seed := storage.DefaultSeed()
	s.ctx = testutil.OperationContext(time.Now())
	s.gateway = &faultyGateway{Gateway: memory.New(seed)}

	s.accounts = &liveAccounts{byNumber: make(map[string]*accountmodels.Account)}
	for _, a := range seed.Accounts {
		s.accounts.byNumber[a.Number] = a.Clone()
	}
	s.machine = &liveMachine{state: seed.Machine}

	ledger, err := models.NewNoteLedger(seed.NoteStock)
	s.Require().NoError(err)
	s.rec = NewReconciler(ledger, s.machine, s.accounts, s.gateway,
		WithLogger(logger.Discard()), WithMetrics(metrics.New()))
}

func (s *ReconcilerSuite) dispense(account string, dollars int64, counts map[models.Denomination]int) (*Result, error) {
	alloc := models.NewAllocation(money.FromDollars(dollars))
	for d, c := range counts {
		alloc.Add(d, c)
	}
	return s.rec.Commit(s.ctx, OperationRequest{
		Kind:          models.KindDispense,
		Allocation:    alloc,
		AccountNumber: account,
	})
}

func (s *ReconcilerSuite) move(kind models.OperationKind, dollars int64, counts map[models.Denomination]int) (*Result, error) {
	alloc := models.NewAllocation(money.FromDollars(dollars))
	for d, c := range counts {
		alloc.Add(d, c)
	}
	return s.rec.Commit(s.ctx, OperationRequest{Kind: kind, Allocation: alloc})
}

// storedStockValue recomputes the cash value of the persisted note stock.
func (s *ReconcilerSuite) storedStockValue() money.Amount {
	stock, err := s.gateway.LoadNoteStock(context.Background())
	s.Require().NoError(err)
	var total money.Amount
	for d, q := range stock {
		total = total.Add(d.Value().Mul(int64(q)))
	}
	return total
}

// requireReconciled asserts the core invariant across every copy of the
// truth: live ledger, live machine state, and both persisted counterparts.
func (s *ReconcilerSuite) requireReconciled() {
	cash := s.rec.CashTotal()
	s.Equal(cash, s.machine.state.Cash, "live cash counter must match the note ledger")
	s.Equal(cash, s.storedStockValue(), "persisted stock must match the note ledger")

	stored, err := s.gateway.LoadMachineState(context.Background())
	s.Require().NoError(err)
	s.Equal(cash, stored.Cash, "persisted cash counter must match the note ledger")
}

func (s *ReconcilerSuite) TestDispense() {
	result, err := s.dispense("1001", 35, map[models.Denomination]int{20: 1, 10: 1, 5: 1})
	s.Require().NoError(err)

	s.Equal(models.OutcomeCommitted, result.Outcome)
	s.Equal("1x$20, 1x$10, 1x$5", result.Breakdown)
	s.Equal(money.FromDollars(1500), result.PreviousBalance)
	s.Equal(money.FromDollars(1465), result.NewBalance)
	s.Equal(money.FromDollars(12000), result.PreviousCash)
	s.Equal(money.FromDollars(11965), result.NewCash)

	s.Run("note counts dropped", func() {
		for d, want := range map[models.Denomination]int{20: 149, 10: 99, 5: 99} {
			q, err := s.rec.QuantityOf(d)
			s.Require().NoError(err)
			s.Equal(want, q, "denomination %s", d)
		}
	})

	s.Run("live account debited and committed", func() {
		s.Equal(money.FromDollars(1465), s.accounts.byNumber["1001"].Balance)
		s.Equal(1, s.accounts.committed)
		s.Equal(1, s.machine.committed)
	})

	s.Run("withdrawal recorded with its note breakdown", func() {
		records, err := s.gateway.ListTransactions(context.Background(), "1001", 10)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal(audit.TypeWithdrawal, records[0].Type)
		s.Equal(money.FromDollars(35), records[0].Amount)
		s.Equal(money.FromDollars(1500), records[0].PreviousBalance)
		s.Equal(money.FromDollars(1465), records[0].NewBalance)
		s.Equal("1x$20, 1x$10, 1x$5", records[0].NoteBreakdown)
	})

	s.requireReconciled()
}

func (s *ReconcilerSuite) TestDispenseRejections() {
	s.Run("insufficient funds", func() {
		result, err := s.dispense("1001", 2000, map[models.Denomination]int{100: 20})
		s.Require().ErrorIs(err, models.ErrInsufficientFunds)
		s.Equal(models.OutcomeRejected, result.Outcome)
	})

	s.Run("insufficient stock", func() {
		_, err := s.dispense("1002", 5100, map[models.Denomination]int{100: 51})
		s.Require().ErrorIs(err, models.ErrInsufficientStock)
	})

	s.Run("selection does not sum to target", func() {
		_, err := s.dispense("1001", 50, map[models.Denomination]int{20: 2})
		s.Require().ErrorIs(err, models.ErrAmountMismatch)
	})

	s.Run("unknown account", func() {
		_, err := s.dispense("9999", 20, map[models.Denomination]int{20: 1})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("missing account number", func() {
		alloc := models.NewAllocation(money.FromDollars(20))
		alloc.Add(20, 1)
		_, err := s.rec.Commit(s.ctx, OperationRequest{Kind: models.KindDispense, Allocation: alloc})
		s.Require().Error(err)
	})

	s.Run("nil allocation", func() {
		_, err := s.rec.Commit(s.ctx, OperationRequest{Kind: models.KindRefill})
		s.Require().ErrorIs(err, models.ErrInvalidNoteCount)
	})

	s.Run("nothing moved", func() {
		s.Equal(money.FromDollars(12000), s.rec.CashTotal())
		s.Equal(money.FromDollars(1500), s.accounts.byNumber["1001"].Balance)
		s.Zero(s.accounts.committed)
		s.Zero(s.machine.committed)

		records, err := s.gateway.ListTransactions(context.Background(), "1001", 10)
		s.Require().NoError(err)
		s.Empty(records)
		s.requireReconciled()
	})
}

func (s *ReconcilerSuite) TestRefill() {
	result, err := s.move(models.KindRefill, 1000, map[models.Denomination]int{100: 10})
	s.Require().NoError(err)

	s.Equal(models.OutcomeCommitted, result.Outcome)
	s.Equal(money.FromDollars(12000), result.PreviousCash)
	s.Equal(money.FromDollars(13000), result.NewCash)

	q, err := s.rec.QuantityOf(100)
	s.Require().NoError(err)
	s.Equal(60, q)

	s.Run("activity recorded", func() {
		activities, err := s.gateway.ListActivities(context.Background(), 20)
		s.Require().NoError(err)
		s.Require().Len(activities, 1)
		s.Equal(audit.ActivityCashRefill, activities[0].Type)
		s.Equal("ATM cash refilled with notes: 10x$100", activities[0].Description)
		s.Equal(money.FromDollars(1000).Cents(), activities[0].Amount)
		s.Equal(money.FromDollars(12000).Cents(), activities[0].PreviousValue)
		s.Equal(money.FromDollars(13000).Cents(), activities[0].NewValue)
	})

	s.requireReconciled()
}

func (s *ReconcilerSuite) TestCollect() {
	result, err := s.move(models.KindCollect, 5000, map[models.Denomination]int{100: 50})
	s.Require().NoError(err)

	s.Equal(models.OutcomeCommitted, result.Outcome)
	s.Equal(money.FromDollars(7000), result.NewCash)

	q, err := s.rec.QuantityOf(100)
	s.Require().NoError(err)
	s.Zero(q)

	s.Run("collection beyond stock is rejected", func() {
		_, err := s.move(models.KindCollect, 100, map[models.Denomination]int{100: 1})
		s.Require().ErrorIs(err, models.ErrInsufficientStock)
		s.Equal(money.FromDollars(7000), s.rec.CashTotal())
	})

	s.Run("activity recorded", func() {
		activities, err := s.gateway.ListActivities(context.Background(), 20)
		s.Require().NoError(err)
		s.Require().Len(activities, 1)
		s.Equal(audit.ActivityCashCollection, activities[0].Type)
		s.Equal("Cash collected from ATM - notes: 50x$100", activities[0].Description)
	})

	s.requireReconciled()
}

func (s *ReconcilerSuite) TestRollbackOnPersistFailure() {
	s.gateway.failStockWrite = true

	result, err := s.dispense("1001", 35, map[models.Denomination]int{20: 1, 10: 1, 5: 1})
	s.Require().ErrorIs(err, models.ErrPersistence)
	s.Equal(models.OutcomeRolledBack, result.Outcome)

	s.Run("live state untouched", func() {
		s.Equal(money.FromDollars(12000), s.rec.CashTotal())
		s.Equal(money.FromDollars(12000), s.machine.state.Cash)
		s.Equal(money.FromDollars(1500), s.accounts.byNumber["1001"].Balance)
		s.Zero(s.accounts.committed)
		s.Zero(s.machine.committed)
	})

	s.Run("persisted state untouched", func() {
		// The account row was written before the stock write failed; the
		// transaction must have rolled it back.
		accounts, err := s.gateway.LoadAccounts(context.Background())
		s.Require().NoError(err)
		s.Equal(money.FromDollars(1500), accounts[0].Balance)

		records, err := s.gateway.ListTransactions(context.Background(), "1001", 10)
		s.Require().NoError(err)
		s.Empty(records)
		s.requireReconciled()
	})

	s.Run("same request succeeds once the store recovers", func() {
		s.gateway.failStockWrite = false
		result, err := s.dispense("1001", 35, map[models.Denomination]int{20: 1, 10: 1, 5: 1})
		s.Require().NoError(err)
		s.Equal(models.OutcomeCommitted, result.Outcome)
		s.Equal(money.FromDollars(11965), s.rec.CashTotal())
		s.requireReconciled()
	})
}

func (s *ReconcilerSuite) TestSequentialOperationsStayReconciled() {
	steps := []struct {
		kind    models.OperationKind
		account string
		dollars int64
		counts  map[models.Denomination]int
	}{
		{models.KindDispense, "1001", 35, map[models.Denomination]int{20: 1, 10: 1, 5: 1}},
		{models.KindRefill, "", 1000, map[models.Denomination]int{50: 20}},
		{models.KindDispense, "1002", 500, map[models.Denomination]int{100: 5}},
		{models.KindCollect, "", 2000, map[models.Denomination]int{100: 20}},
		{models.KindDispense, "1003", 135, map[models.Denomination]int{100: 1, 20: 1, 10: 1, 5: 1}},
	}

	for _, step := range steps {
		alloc := models.NewAllocation(money.FromDollars(step.dollars))
		for d, c := range step.counts {
			alloc.Add(d, c)
		}
		_, err := s.rec.Commit(s.ctx, OperationRequest{
			Kind:          step.kind,
			Allocation:    alloc,
			AccountNumber: step.account,
		})
		s.Require().NoError(err, "%s of $%d", step.kind, step.dollars)
		s.requireReconciled()
	}

	// 12000 - 35 + 1000 - 500 - 2000 - 135
	s.Equal(money.FromDollars(10330), s.rec.CashTotal())
}

// TestDispenseThenRefillRoundTrip checks that refilling the exact notes a
// dispense handed out restores the cassette and the cash counter to their
// pre-dispense position.
func (s *ReconcilerSuite) TestDispenseThenRefillRoundTrip() {
	stockBefore := s.rec.StockSnapshot()
	cashBefore := s.rec.CashTotal()
	selection := map[models.Denomination]int{100: 1, 20: 1, 10: 1, 5: 1}

	_, err := s.dispense("1001", 135, selection)
	s.Require().NoError(err)
	_, err = s.move(models.KindRefill, 135, selection)
	s.Require().NoError(err)

	s.Equal(stockBefore, s.rec.StockSnapshot())
	s.Equal(cashBefore, s.rec.CashTotal())
	s.Equal(cashBefore, s.machine.state.Cash)
	// The cardholder keeps the debit; only the physical position round-trips.
	s.Equal(money.FromDollars(1365), s.accounts.byNumber["1001"].Balance)
	s.requireReconciled()
}

// TestRefillThenCollectRoundTrip checks that moving the same notes in and
// back out restores the exact starting position.
func (s *ReconcilerSuite) TestRefillThenCollectRoundTrip() {
	before := s.rec.StockSnapshot()

	_, err := s.move(models.KindRefill, 700, map[models.Denomination]int{100: 5, 50: 4})
	s.Require().NoError(err)
	_, err = s.move(models.KindCollect, 700, map[models.Denomination]int{100: 5, 50: 4})
	s.Require().NoError(err)

	s.Equal(before, s.rec.StockSnapshot())
	s.Equal(money.FromDollars(12000), s.rec.CashTotal())
	s.requireReconciled()
}
