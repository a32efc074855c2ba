// Package service authenticates terminal operators and opens their sessions.
// It is deliberately thin: one lookup, one credential comparison, one
// session. Role capabilities are enforced by the terminal handing each
// session only the operations its role owns.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/auth/models"
	"cashpoint/internal/platform/metrics"
	"cashpoint/pkg/platform/sentinel"
	"cashpoint/pkg/requestcontext"
)

// Accounts is the account lookup the cardholder login needs.
type Accounts interface {
	Snapshot(ctx context.Context, number string) (*accountmodels.Account, error)
}

// Store is the technician lookup the maintenance login needs.
type Store interface {
	FindTechnician(ctx context.Context, username string) (*models.Technician, error)
}

type Service struct {
	accounts Accounts
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

func New(accounts Accounts, store Store, opts ...Option) *Service {
	s := &Service{accounts: accounts, store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// AuthenticateCardholder opens a cardholder session for a valid account
// number and PIN. A wrong number and a wrong PIN both come back as
// ErrBadCredentials; the login screen never reveals which one it was.
func (s *Service) AuthenticateCardholder(ctx context.Context, number, pin string) (models.Session, error) {
	account, err := s.accounts.Snapshot(ctx, number)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return models.Session{}, fmt.Errorf("look up account: %w", err)
		}
		s.recordLogin(ctx, string(models.RoleCardholder), false)
		return models.Session{}, models.ErrBadCredentials
	}
	if !account.VerifyPIN(pin) {
		s.recordLogin(ctx, string(models.RoleCardholder), false)
		return models.Session{}, models.ErrBadCredentials
	}

	session := models.NewCardholderSession(account.Number, account.Holder, requestcontext.Now(ctx))
	s.recordLogin(ctx, string(models.RoleCardholder), true)
	s.logger.InfoContext(ctx, "cardholder authenticated",
		"session_id", session.ID, "account", account.Number)
	return session, nil
}

// AuthenticateTechnician opens a technician session for valid maintenance
// credentials. Failures collapse to ErrBadCredentials the same way.
func (s *Service) AuthenticateTechnician(ctx context.Context, username, password string) (models.Session, error) {
	technician, err := s.store.FindTechnician(ctx, username)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return models.Session{}, fmt.Errorf("look up technician: %w", err)
		}
		s.recordLogin(ctx, string(models.RoleTechnician), false)
		return models.Session{}, models.ErrBadCredentials
	}
	if technician.Password != password {
		s.recordLogin(ctx, string(models.RoleTechnician), false)
		return models.Session{}, models.ErrBadCredentials
	}

	session := models.NewTechnicianSession(technician.Username, technician.FullName, requestcontext.Now(ctx))
	s.recordLogin(ctx, string(models.RoleTechnician), true)
	s.logger.InfoContext(ctx, "technician authenticated",
		"session_id", session.ID, "username", technician.Username)
	return session, nil
}

func (s *Service) recordLogin(ctx context.Context, role string, succeeded bool) {
	if s.metrics != nil {
		s.metrics.IncLogin(role, succeeded)
	}
	if !succeeded {
		s.logger.WarnContext(ctx, "login rejected", "role", role)
	}
}
