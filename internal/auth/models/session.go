package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrBadCredentials covers every login failure. Callers never learn whether
// the account, the PIN, or the password was wrong.
var ErrBadCredentials = errors.New("bad credentials")

// Role separates the two kinds of terminal operator. A session carries
// exactly one role, and each service surface accepts only the matching one.
type Role string

const (
	RoleCardholder Role = "cardholder"
	RoleTechnician Role = "technician"
)

// Session is an in-process login at the terminal. Sessions are never
// persisted; switching off the terminal ends them, and there is nothing to
// resume or replay. DisplayName is the greeting line the terminal shows.
type Session struct {
	ID                 uuid.UUID
	Role               Role
	AccountNumber      string
	TechnicianUsername string
	DisplayName        string
	StartedAt          time.Time
}

// NewCardholderSession opens a session for an authenticated account.
func NewCardholderSession(accountNumber, holder string, now time.Time) Session {
	return Session{
		ID:            uuid.New(),
		Role:          RoleCardholder,
		AccountNumber: accountNumber,
		DisplayName:   holder,
		StartedAt:     now,
	}
}

// NewTechnicianSession opens a session for an authenticated technician.
func NewTechnicianSession(username, fullName string, now time.Time) Session {
	return Session{
		ID:                 uuid.New(),
		Role:               RoleTechnician,
		TechnicianUsername: username,
		DisplayName:        fullName,
		StartedAt:          now,
	}
}

func (s Session) IsCardholder() bool {
	return s.Role == RoleCardholder
}

func (s Session) IsTechnician() bool {
	return s.Role == RoleTechnician
}
