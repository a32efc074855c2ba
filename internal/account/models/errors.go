package models

import "errors"

// Domain errors for account operations that carry no note leg (deposits,
// transfers, PIN changes). Dispenses go through the vault reconciler, which
// has its own rejection taxonomy.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidPIN        = errors.New("invalid pin")
	ErrSameAccount       = errors.New("transfer to same account")
)
