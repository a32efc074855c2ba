package models

import (
	"fmt"
	"strings"
	"unicode"

	"cashpoint/pkg/money"
)

// Account is a cardholder account as the terminal sees it.
//
// Invariants:
//   - Number is non-empty (uniqueness enforced by the store)
//   - Balance is never negative
//   - PIN is exactly four digits
//
// Balance mutations follow the Can/Apply split: services call CanDebit inside
// a transaction to validate, then ApplyDebit on a clone once the mutation is
// certain to persist. A debit that would overdraw fails at CanDebit; nothing
// in this package lets Balance go negative.
type Account struct {
	Number  string
	Holder  string
	Balance money.Amount
	PIN     string
}

// NewAccount constructs an account, validating invariants.
func NewAccount(number, holder string, opening money.Amount, pin string) (*Account, error) {
	number = strings.TrimSpace(number)
	holder = strings.TrimSpace(holder)
	if number == "" {
		return nil, fmt.Errorf("account number cannot be empty")
	}
	if holder == "" {
		return nil, fmt.Errorf("account holder cannot be empty")
	}
	if opening.IsNegative() {
		return nil, fmt.Errorf("%w: opening balance %s", ErrInvalidAmount, opening)
	}
	if err := ValidatePIN(pin); err != nil {
		return nil, err
	}
	return &Account{Number: number, Holder: holder, Balance: opening, PIN: pin}, nil
}

// ValidatePIN enforces the four-digit PIN format.
func ValidatePIN(pin string) error {
	if len(pin) != 4 {
		return fmt.Errorf("%w: must be exactly 4 digits", ErrInvalidPIN)
	}
	for _, r := range pin {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("%w: must be exactly 4 digits", ErrInvalidPIN)
		}
	}
	return nil
}

// VerifyPIN reports whether the candidate matches the stored PIN.
func (a *Account) VerifyPIN(candidate string) bool {
	return a.PIN == candidate
}

// CanDebit checks whether the balance covers a withdrawal of amount.
// Use with ApplyDebit once the surrounding transaction is certain to commit.
func (a *Account) CanDebit(amount money.Amount) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: debit of %s", ErrInvalidAmount, amount)
	}
	if a.Balance.Sub(amount).IsNegative() {
		return fmt.Errorf("%w: balance %s cannot cover %s", ErrInsufficientFunds, a.Balance, amount)
	}
	return nil
}

// ApplyDebit reduces the balance. Call CanDebit first.
func (a *Account) ApplyDebit(amount money.Amount) {
	a.Balance = a.Balance.Sub(amount)
}

// CanCredit checks that a deposit amount is positive.
func (a *Account) CanCredit(amount money.Amount) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: credit of %s", ErrInvalidAmount, amount)
	}
	return nil
}

// ApplyCredit increases the balance. Call CanCredit first.
func (a *Account) ApplyCredit(amount money.Amount) {
	a.Balance = a.Balance.Add(amount)
}

// ChangePIN validates and sets a new PIN.
func (a *Account) ChangePIN(newPIN string) error {
	if err := ValidatePIN(newPIN); err != nil {
		return err
	}
	a.PIN = newPIN
	return nil
}

// Clone returns an independent copy for the copy-then-swap commit protocol.
func (a *Account) Clone() *Account {
	c := *a
	return &c
}
