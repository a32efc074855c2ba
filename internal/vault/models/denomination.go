package models

import (
	"strconv"

	"cashpoint/pkg/money"
)

// Denomination is a bank note face value in whole dollars. The set of
// denominations a terminal stocks is fixed when its ledger is built; there is
// no coin support.
type Denomination int

// Value returns the face value as a monetary amount.
func (d Denomination) Value() money.Amount {
	return money.FromDollars(int64(d))
}

func (d Denomination) String() string {
	return "$" + strconv.Itoa(int(d))
}
