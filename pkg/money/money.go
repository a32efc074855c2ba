// Package money provides a fixed-point monetary amount for cash accounting.
//
// Amounts are stored as int64 minor units (cents). All arithmetic stays in
// integer space; decimal parsing and formatting happen only at the terminal
// boundary. This keeps ledger reconciliation exact: two amounts are equal iff
// their cent counts are equal, with no epsilon anywhere.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value in minor units (cents).
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// FromCents wraps a raw cent count.
func FromCents(cents int64) Amount {
	return Amount(cents)
}

// FromDollars converts a whole-dollar value, e.g. denomination face values.
func FromDollars(dollars int64) Amount {
	return Amount(dollars * 100)
}

// Parse converts a decimal dollar string ("1500", "12.50") into an Amount.
// Values with more than two decimal places are rejected rather than rounded,
// since silently rounding user input would desync the terminal display from
// the persisted ledger.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return 0, fmt.Errorf("parse amount %q: more than two decimal places", s)
	}
	return Amount(cents.IntPart()), nil
}

// Cents returns the raw minor-unit count.
func (a Amount) Cents() int64 {
	return int64(a)
}

func (a Amount) Add(b Amount) Amount {
	return a + b
}

func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// Mul scales the amount by an integer factor (note count x face value).
func (a Amount) Mul(n int64) Amount {
	return Amount(int64(a) * n)
}

func (a Amount) IsZero() bool {
	return a == 0
}

func (a Amount) IsPositive() bool {
	return a > 0
}

func (a Amount) IsNegative() bool {
	return a < 0
}

// Format renders the amount as a plain two-decimal string, e.g. "1500.00".
func (a Amount) Format() string {
	return decimal.New(int64(a), -2).StringFixed(2)
}

// String renders the amount with a leading dollar sign, e.g. "$1500.00".
func (a Amount) String() string {
	return "$" + a.Format()
}
