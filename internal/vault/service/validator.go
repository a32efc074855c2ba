package service

import (
	"fmt"

	"cashpoint/internal/vault/models"
)

// ValidateAllocation proves that a note selection can satisfy its operation
// before any state is touched. It never mutates the ledger and, for the same
// selection against an unchanged ledger, always returns the same verdict.
//
// Checks run in a fixed order and the first failure wins:
//  1. the target amount is positive
//  2. every selected denomination is one the terminal stocks
//  3. every selected count is positive
//  4. the selection sums to the target amount, exactly, in cents
//  5. for operations that remove notes, the cassette holds enough of each
//     denomination (a refill adds notes, so stock cannot constrain it)
func ValidateAllocation(ledger *models.NoteLedger, alloc *models.Allocation, kind models.OperationKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown operation kind %q", kind)
	}
	if !alloc.Target().IsPositive() {
		return fmt.Errorf("%w: target %s", models.ErrInvalidAmount, alloc.Target())
	}

	for _, d := range alloc.Denominations() {
		if !ledger.Has(d) {
			return fmt.Errorf("%w: %s", models.ErrUnknownDenomination, d)
		}
	}
	for _, d := range alloc.Denominations() {
		if count := alloc.Count(d); count <= 0 {
			return fmt.Errorf("%w: %s count %d", models.ErrInvalidNoteCount, d, count)
		}
	}

	if selected := alloc.SelectedValue(); selected != alloc.Target() {
		return fmt.Errorf("%w: notes sum to %s, target is %s",
			models.ErrAmountMismatch, selected, alloc.Target())
	}

	if kind.Outbound() {
		for _, d := range alloc.Denominations() {
			have, err := ledger.QuantityOf(d)
			if err != nil {
				return err
			}
			if need := alloc.Count(d); need > have {
				return fmt.Errorf("%w: %s need %d have %d", models.ErrInsufficientStock, d, need, have)
			}
		}
	}
	return nil
}
