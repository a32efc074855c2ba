package models

import "errors"

// Domain errors for cash-handling operations. The validator and reconciler
// return these (usually wrapped with detail) so the terminal layer can match
// with errors.Is and render a specific message per failure.
//
// Every rejection of an operation maps to exactly one of these:
//   - ErrUnknownDenomination: selection names a note the terminal does not stock
//   - ErrInvalidNoteCount: a selected count is zero or negative
//   - ErrInvalidAmount: the target amount is zero or negative
//   - ErrAmountMismatch: selected notes do not sum to the target amount
//   - ErrInsufficientStock: cassette holds fewer notes than the selection needs
//   - ErrInsufficientFunds: account balance cannot cover the dispense
//   - ErrPersistence: the commit transaction failed and state was rolled back
var (
	ErrUnknownDenomination = errors.New("unknown denomination")
	ErrInvalidNoteCount    = errors.New("invalid note count")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrInsufficientStock   = errors.New("insufficient note stock")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrPersistence         = errors.New("persistence failure")
)
