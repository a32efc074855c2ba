package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about stored resources, not validation
// failures:
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: unique key already taken (account number, technician name)
//   - ErrInvalidState: entity in wrong state for the requested operation
//   - ErrUnavailable: backing store temporarily unreachable
//
// Validation failures (bad amounts, malformed note selections) belong to the
// domain packages that define them.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
