package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cashpoint/internal/vault/models"
	"cashpoint/pkg/money"
)

// testLedger stocks a single $100 note so collection overdraws are easy to
// provoke.
func testLedger(t *testing.T) *models.NoteLedger {
	t.Helper()
	l, err := models.NewNoteLedger(map[models.Denomination]int{
		5: 100, 10: 100, 20: 150, 50: 50, 100: 1,
	})
	require.NoError(t, err)
	return l
}

func allocationOf(dollars int64, counts map[models.Denomination]int) *models.Allocation {
	alloc := models.NewAllocation(money.FromDollars(dollars))
	for d, c := range counts {
		alloc.Add(d, c)
	}
	return alloc
}

func TestValidateAllocation(t *testing.T) {
	t.Run("accepts an exact dispense selection", func(t *testing.T) {
		alloc := allocationOf(35, map[models.Denomination]int{20: 1, 10: 1, 5: 1})
		assert.NoError(t, ValidateAllocation(testLedger(t), alloc, models.KindDispense))
	})

	t.Run("accepts a refill beyond current stock", func(t *testing.T) {
		alloc := allocationOf(300, map[models.Denomination]int{100: 3})
		assert.NoError(t, ValidateAllocation(testLedger(t), alloc, models.KindRefill))
	})

	t.Run("rejects an unknown operation kind", func(t *testing.T) {
		alloc := allocationOf(20, map[models.Denomination]int{20: 1})
		assert.Error(t, ValidateAllocation(testLedger(t), alloc, models.OperationKind("audit")))
	})

	t.Run("rejects a non-positive target", func(t *testing.T) {
		assert.ErrorIs(t,
			ValidateAllocation(testLedger(t), allocationOf(0, nil), models.KindDispense),
			models.ErrInvalidAmount)
		assert.ErrorIs(t,
			ValidateAllocation(testLedger(t), allocationOf(-20, map[models.Denomination]int{20: -1}), models.KindDispense),
			models.ErrInvalidAmount)
	})

	t.Run("rejects a denomination the terminal does not stock", func(t *testing.T) {
		alloc := allocationOf(200, map[models.Denomination]int{200: 1})
		assert.ErrorIs(t, ValidateAllocation(testLedger(t), alloc, models.KindRefill),
			models.ErrUnknownDenomination)
	})

	t.Run("rejects a non-positive note count", func(t *testing.T) {
		alloc := allocationOf(20, map[models.Denomination]int{20: 1})
		alloc.Add(10, 0)
		assert.ErrorIs(t, ValidateAllocation(testLedger(t), alloc, models.KindDispense),
			models.ErrInvalidNoteCount)
	})

	t.Run("rejects a selection that undershoots the target", func(t *testing.T) {
		alloc := allocationOf(50, map[models.Denomination]int{20: 2})
		err := ValidateAllocation(testLedger(t), alloc, models.KindDispense)
		require.ErrorIs(t, err, models.ErrAmountMismatch)
		assert.Contains(t, err.Error(), "$40.00")
	})

	t.Run("rejects a selection that overshoots the target", func(t *testing.T) {
		alloc := allocationOf(50, map[models.Denomination]int{20: 3})
		assert.ErrorIs(t, ValidateAllocation(testLedger(t), alloc, models.KindDispense),
			models.ErrAmountMismatch)
	})

	t.Run("rejects an empty selection", func(t *testing.T) {
		alloc := allocationOf(50, nil)
		assert.ErrorIs(t, ValidateAllocation(testLedger(t), alloc, models.KindDispense),
			models.ErrAmountMismatch)
	})

	t.Run("rejects an outbound selection the cassette cannot cover", func(t *testing.T) {
		alloc := allocationOf(200, map[models.Denomination]int{100: 2})
		err := ValidateAllocation(testLedger(t), alloc, models.KindCollect)
		require.ErrorIs(t, err, models.ErrInsufficientStock)
		assert.Contains(t, err.Error(), "need 2 have 1")
	})

	t.Run("stock never constrains a refill", func(t *testing.T) {
		alloc := allocationOf(200, map[models.Denomination]int{100: 2})
		assert.NoError(t, ValidateAllocation(testLedger(t), alloc, models.KindRefill))
	})

	t.Run("unknown denomination wins over amount mismatch", func(t *testing.T) {
		alloc := allocationOf(500, map[models.Denomination]int{200: 1})
		assert.ErrorIs(t, ValidateAllocation(testLedger(t), alloc, models.KindDispense),
			models.ErrUnknownDenomination)
	})

	t.Run("validation leaves the ledger untouched", func(t *testing.T) {
		l := testLedger(t)
		before := l.TotalValue()
		_ = ValidateAllocation(l, allocationOf(35, map[models.Denomination]int{20: 1, 10: 1, 5: 1}), models.KindDispense)
		_ = ValidateAllocation(l, allocationOf(200, map[models.Denomination]int{100: 2}), models.KindCollect)
		assert.Equal(t, before, l.TotalValue())
	})

	t.Run("identical inputs validate identically", func(t *testing.T) {
		l := testLedger(t)
		valid := allocationOf(35, map[models.Denomination]int{20: 1, 10: 1, 5: 1})
		short := allocationOf(50, map[models.Denomination]int{20: 2})

		assert.NoError(t, ValidateAllocation(l, valid, models.KindDispense))
		assert.NoError(t, ValidateAllocation(l, valid, models.KindDispense))

		first := ValidateAllocation(l, short, models.KindDispense)
		second := ValidateAllocation(l, short, models.KindDispense)
		require.ErrorIs(t, first, models.ErrAmountMismatch)
		assert.Equal(t, first.Error(), second.Error())
	})
}

// TestExactSumLaw drives the validator with random denomination sets and
// selections: a selection passes iff it sums to the target to the cent.
func TestExactSumLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	faces := []models.Denomination{1, 2, 5, 10, 20, 50, 100, 200, 500}

	for i := 0; i < 300; i++ {
		quantities := make(map[models.Denomination]int)
		for _, d := range faces {
			if rng.Intn(2) == 0 {
				quantities[d] = 1000
			}
		}
		if len(quantities) == 0 {
			quantities[faces[rng.Intn(len(faces))]] = 1000
		}
		ledger, err := models.NewNoteLedger(quantities)
		require.NoError(t, err)

		var sum money.Amount
		counts := make(map[models.Denomination]int)
		for d := range quantities {
			if c := rng.Intn(6); c > 0 {
				counts[d] = c
				sum = sum.Add(d.Value().Mul(int64(c)))
			}
		}
		if len(counts) == 0 {
			for d := range quantities {
				counts[d] = 1 + rng.Intn(5)
				sum = d.Value().Mul(int64(counts[d]))
				break
			}
		}

		exact := models.NewAllocation(sum)
		for d, c := range counts {
			exact.Add(d, c)
		}
		assert.NoError(t, ValidateAllocation(ledger, exact, models.KindDispense),
			"iteration %d: exact selection for %s rejected", i, sum)

		mismatch := money.FromCents(int64(1 + rng.Intn(5000)))
		target := sum.Add(mismatch)
		if rng.Intn(2) == 0 && sum.Sub(mismatch).IsPositive() {
			target = sum.Sub(mismatch)
		}
		off := models.NewAllocation(target)
		for d, c := range counts {
			off.Add(d, c)
		}
		assert.ErrorIs(t, ValidateAllocation(ledger, off, models.KindDispense), models.ErrAmountMismatch,
			"iteration %d: selection of %s against target %s accepted", i, sum, target)
	}
}
