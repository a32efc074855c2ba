package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cashpoint/internal/audit"
	"cashpoint/internal/machine/models"
	"cashpoint/internal/platform/logger"
	"cashpoint/internal/platform/metrics"
	"cashpoint/internal/storage"
	"cashpoint/internal/storage/memory"
	"cashpoint/pkg/testutil"
)

// jammedStore wraps the in-memory gateway and fails machine-state writes on
// demand.
type jammedStore struct {
	*memory.Gateway
	failSave bool
}

func (s *jammedStore) SaveMachineState(ctx context.Context, state models.State) error {
	if s.failSave {
		return errors.New("disk full")
	}
	return s.Gateway.SaveMachineState(ctx, state)
}

type MachineServiceSuite struct {
	suite.Suite
	ctx   context.Context
	store *jammedStore
	svc   *Service
}

func TestMachineServiceSuite(t *testing.T) {
	suite.Run(t, new(MachineServiceSuite))
}

func (s *MachineServiceSuite) SetupTest() {
	s.ctx = testutil.OperationContext(time.Now())
	s.store = &jammedStore{Gateway: memory.New(storage.DefaultSeed())}

	svc, err := New(context.Background(), s.store,
		WithLogger(logger.Discard()), WithMetrics(metrics.New()))
	s.Require().NoError(err)
	s.svc = svc
}

func (s *MachineServiceSuite) storedState() models.State {
	state, err := s.store.LoadMachineState(context.Background())
	s.Require().NoError(err)
	return state
}

func (s *MachineServiceSuite) TestRefillPaper() {
	s.Run("adds sheets and records the activity", func() {
		state, err := s.svc.RefillPaper(s.ctx, 25)
		s.Require().NoError(err)
		s.Equal(75, state.PaperSheets)
		s.Equal(75, s.storedState().PaperSheets)

		activities, err := s.store.ListActivities(context.Background(), 20)
		s.Require().NoError(err)
		s.Require().Len(activities, 1)
		s.Equal(audit.ActivityPaperRefill, activities[0].Type)
		s.Equal("Paper refilled", activities[0].Description)
		s.Equal(int64(25), activities[0].Amount)
		s.Equal(int64(50), activities[0].PreviousValue)
		s.Equal(int64(75), activities[0].NewValue)
	})

	s.Run("rejects a non-positive count", func() {
		_, err := s.svc.RefillPaper(s.ctx, 0)
		s.Require().ErrorIs(err, models.ErrInvalidSupplyCount)
		_, err = s.svc.RefillPaper(s.ctx, -3)
		s.Require().ErrorIs(err, models.ErrInvalidSupplyCount)
		s.Equal(75, s.svc.Snapshot().PaperSheets)
	})
}

func (s *MachineServiceSuite) TestRefillInk() {
	state, err := s.svc.RefillInk(s.ctx, 100)
	s.Require().NoError(err)
	s.Equal(600, state.InkUnits)
	s.Equal(600, s.storedState().InkUnits)

	activities, err := s.store.ListActivities(context.Background(), 20)
	s.Require().NoError(err)
	s.Require().Len(activities, 1)
	s.Equal(audit.ActivityInkRefill, activities[0].Type)
	s.Equal("Ink refilled", activities[0].Description)
	s.Equal(int64(500), activities[0].PreviousValue)
	s.Equal(int64(600), activities[0].NewValue)
}

func (s *MachineServiceSuite) TestRefillRollback() {
	s.store.failSave = true
	_, err := s.svc.RefillPaper(s.ctx, 25)
	s.Require().Error(err)

	s.Equal(50, s.svc.Snapshot().PaperSheets, "live state must not move on rollback")
	s.Equal(50, s.storedState().PaperSheets)

	activities, err := s.store.ListActivities(context.Background(), 20)
	s.Require().NoError(err)
	s.Empty(activities, "no activity may describe a refill that did not persist")
}

func (s *MachineServiceSuite) TestDebitReceipt() {
	s.Run("consumes one sheet and one ink unit", func() {
		state, ok := s.svc.DebitReceipt(s.ctx)
		s.True(ok)
		s.Equal(49, state.PaperSheets)
		s.Equal(499, state.InkUnits)
		s.Equal(49, s.storedState().PaperSheets)
	})

	s.Run("store failure leaves supplies untouched", func() {
		s.store.failSave = true
		state, ok := s.svc.DebitReceipt(s.ctx)
		s.False(ok)
		s.Equal(49, state.PaperSheets)
		s.store.failSave = false
	})
}

func (s *MachineServiceSuite) TestDebitReceiptWithoutSupplies() {
	seed := storage.DefaultSeed()
	seed.Machine.PaperSheets = 0
	store := &jammedStore{Gateway: memory.New(seed)}
	svc, err := New(context.Background(), store,
		WithLogger(logger.Discard()), WithMetrics(metrics.New()))
	s.Require().NoError(err)

	state, ok := svc.DebitReceipt(s.ctx)
	s.False(ok)
	s.Zero(state.PaperSheets)
	s.Equal(500, state.InkUnits, "a skipped receipt must not burn ink")
}

func (s *MachineServiceSuite) TestStatus() {
	_, ok := s.svc.DebitReceipt(s.ctx)
	s.Require().True(ok)

	status := s.svc.Status(s.ctx)
	s.Equal(49, status.State.PaperSheets)
	s.Contains(status.Counters, "cashpoint_receipts_printed_total 1")
}
