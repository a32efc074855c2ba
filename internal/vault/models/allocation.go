package models

import (
	"fmt"
	"sort"
	"strings"

	"cashpoint/pkg/money"
)

// Allocation is a concrete note selection meant to satisfy a cash amount:
// "this many of each denomination". The terminal builds one interactively
// during withdrawals, refills, and collections; the validator then proves it
// sums to the target before the reconciler will touch any state.
//
// An Allocation is ephemeral. It is never persisted; only its Breakdown
// string survives, embedded in the audit record of a committed operation.
type Allocation struct {
	target money.Amount
	counts map[Denomination]int
}

// NewAllocation starts an empty selection against a target amount.
func NewAllocation(target money.Amount) *Allocation {
	return &Allocation{target: target, counts: make(map[Denomination]int)}
}

// Target returns the amount this selection is meant to add up to.
func (a *Allocation) Target() money.Amount {
	return a.target
}

// Add accumulates count notes of a denomination into the selection.
// Repeated adds of the same denomination sum.
func (a *Allocation) Add(d Denomination, count int) {
	a.counts[d] += count
}

// Count returns the selected note count for a denomination, zero if none.
func (a *Allocation) Count(d Denomination) int {
	return a.counts[d]
}

// Counts copies the selection.
func (a *Allocation) Counts() map[Denomination]int {
	cs := make(map[Denomination]int, len(a.counts))
	for d, c := range a.counts {
		cs[d] = c
	}
	return cs
}

// IsEmpty reports whether no notes have been selected.
func (a *Allocation) IsEmpty() bool {
	return len(a.counts) == 0
}

// SelectedValue returns the cash value of the selected notes.
func (a *Allocation) SelectedValue() money.Amount {
	var total money.Amount
	for d, c := range a.counts {
		total = total.Add(d.Value().Mul(int64(c)))
	}
	return total
}

// Remaining returns how much of the target is still unselected. Negative
// means the selection overshot.
func (a *Allocation) Remaining() money.Amount {
	return a.target.Sub(a.SelectedValue())
}

// Denominations lists the selected denominations in descending face-value
// order.
func (a *Allocation) Denominations() []Denomination {
	ds := make([]Denomination, 0, len(a.counts))
	for d := range a.counts {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] > ds[j] })
	return ds
}

// Breakdown renders the selection as "1x$20, 1x$10, 1x$5": descending
// denomination, count before face value. The same input always produces the
// same string, which is what makes audit records comparable.
func (a *Allocation) Breakdown() string {
	parts := make([]string, 0, len(a.counts))
	for _, d := range a.Denominations() {
		parts = append(parts, fmt.Sprintf("%dx%s", a.counts[d], d))
	}
	return strings.Join(parts, ", ")
}
