package models

import (
	"time"

	"cashpoint/pkg/money"
)

// State is the terminal's own persisted condition: cash on hand plus the
// receipt printer supplies. It is a value type; services hand out and accept
// copies, which keeps the copy-then-swap commit protocol trivial.
//
// Invariants:
//   - Cash is never negative and, between commits, always equals the note
//     ledger's total value
//   - PaperSheets and InkUnits are never negative
type State struct {
	Cash        money.Amount
	PaperSheets int
	InkUnits    int
	LastUpdated time.Time
}

// CanPrintReceipt reports whether one receipt's worth of paper and ink is
// available. Printing takes one sheet and one ink unit.
func (s State) CanPrintReceipt() bool {
	return s.PaperSheets >= 1 && s.InkUnits >= 1
}

// ApplyReceiptDebit consumes the supplies for one printed receipt.
// Call CanPrintReceipt first.
func (s State) ApplyReceiptDebit(now time.Time) State {
	s.PaperSheets--
	s.InkUnits--
	s.LastUpdated = now
	return s
}

// ApplyCashDelta moves the cash counter by delta (positive for refills,
// negative for dispenses and collections).
func (s State) ApplyCashDelta(delta money.Amount, now time.Time) State {
	s.Cash = s.Cash.Add(delta)
	s.LastUpdated = now
	return s
}

// ApplyPaperRefill adds sheets to the printer. Call with a positive count.
func (s State) ApplyPaperRefill(sheets int, now time.Time) State {
	s.PaperSheets += sheets
	s.LastUpdated = now
	return s
}

// ApplyInkRefill adds ink units to the printer. Call with a positive count.
func (s State) ApplyInkRefill(units int, now time.Time) State {
	s.InkUnits += units
	s.LastUpdated = now
	return s
}
