package models

import (
	"fmt"
	"sort"

	"cashpoint/pkg/money"
)

// NoteLedger is the authoritative registry of bank notes physically held in
// the terminal's cassette, one quantity per denomination.
//
// Invariants:
//   - the denomination set is fixed at construction; unknown denominations
//     are rejected, never silently added
//   - quantities are never negative
//   - TotalValue always equals the sum of face value x quantity over all
//     denominations
//
// The ledger itself is not safe for concurrent use and performs no I/O.
// All mutation during cash operations goes through the Reconciler, which
// works on a Clone and swaps it in only after the backing store commits.
type NoteLedger struct {
	quantities map[Denomination]int
}

// NewNoteLedger builds a ledger over a fixed denomination set with starting
// quantities. Non-positive face values and negative quantities are rejected.
func NewNoteLedger(quantities map[Denomination]int) (*NoteLedger, error) {
	if len(quantities) == 0 {
		return nil, fmt.Errorf("note ledger requires at least one denomination")
	}
	qs := make(map[Denomination]int, len(quantities))
	for d, q := range quantities {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDenomination, d)
		}
		if q < 0 {
			return nil, fmt.Errorf("%w: %s quantity %d", ErrInvalidNoteCount, d, q)
		}
		qs[d] = q
	}
	return &NoteLedger{quantities: qs}, nil
}

// Has reports whether the denomination is part of the ledger's fixed set.
func (l *NoteLedger) Has(d Denomination) bool {
	_, ok := l.quantities[d]
	return ok
}

// QuantityOf returns the current note count for a denomination.
func (l *NoteLedger) QuantityOf(d Denomination) (int, error) {
	q, ok := l.quantities[d]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDenomination, d)
	}
	return q, nil
}

// Increase adds count notes of a denomination. The count must be positive;
// there is no upper capacity bound.
func (l *NoteLedger) Increase(d Denomination, count int) error {
	if _, ok := l.quantities[d]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDenomination, d)
	}
	if count <= 0 {
		return fmt.Errorf("%w: %s count %d", ErrInvalidNoteCount, d, count)
	}
	l.quantities[d] += count
	return nil
}

// Decrease removes count notes of a denomination. Removing more notes than
// the cassette holds fails with ErrInsufficientStock and leaves the quantity
// untouched, so the non-negative invariant holds unconditionally.
func (l *NoteLedger) Decrease(d Denomination, count int) error {
	q, ok := l.quantities[d]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDenomination, d)
	}
	if count <= 0 {
		return fmt.Errorf("%w: %s count %d", ErrInvalidNoteCount, d, count)
	}
	if count > q {
		return fmt.Errorf("%w: %s need %d have %d", ErrInsufficientStock, d, count, q)
	}
	l.quantities[d] = q - count
	return nil
}

// TotalValue returns the cash value of every note in the cassette.
func (l *NoteLedger) TotalValue() money.Amount {
	var total money.Amount
	for d, q := range l.quantities {
		total = total.Add(d.Value().Mul(int64(q)))
	}
	return total
}

// Denominations lists the fixed set in descending face-value order, the order
// the terminal prompts in and breakdowns print in.
func (l *NoteLedger) Denominations() []Denomination {
	ds := make([]Denomination, 0, len(l.quantities))
	for d := range l.quantities {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] > ds[j] })
	return ds
}

// Snapshot copies the current quantities for persistence and display.
func (l *NoteLedger) Snapshot() map[Denomination]int {
	qs := make(map[Denomination]int, len(l.quantities))
	for d, q := range l.quantities {
		qs[d] = q
	}
	return qs
}

// Clone returns an independent copy. The reconciler mutates the clone and
// swaps it in only after the store transaction commits, so a failed commit
// never leaves the live ledger half-updated.
func (l *NoteLedger) Clone() *NoteLedger {
	return &NoteLedger{quantities: l.Snapshot()}
}
