package term

import (
	"fmt"
	"strconv"

	vaultmodels "cashpoint/internal/vault/models"
	"cashpoint/pkg/money"
)

// noteView is the read side of the note ledger the selection and inventory
// screens need.
type noteView interface {
	Denominations() []vaultmodels.Denomination
	QuantityOf(d vaultmodels.Denomination) (int, error)
}

// collectSelection walks the operator through picking notes until the
// selection sums to the target exactly, then returns it. flow names the
// operation on the cancel line ("withdrawal", "refill", "collection"). When
// stockLimited is set, the running selection may not exceed the notes on
// hand. Returns nil when cancelled or input ends.
//
// The loop cannot produce an overshoot: an add that would push the
// selection past the target is rejected, so confirming early can only ever
// mean the selection is still short.
func (c *console) collectSelection(target money.Amount, flow string, vault noteView, stockLimited bool) *vaultmodels.Allocation {
	alloc := vaultmodels.NewAllocation(target)
	denominations := vault.Denominations()

	for alloc.Remaining().IsPositive() {
		c.printf("\nSelect bank notes to make up %s\n", target)
		c.printf("Current selection: %s\n", alloc.SelectedValue())
		c.printf("Remaining: %s\n", alloc.Remaining())
		c.printf("\nOptions:\n")
		for i, d := range denominations {
			c.printf("%d. Add %s note\n", i+1, d)
		}
		c.printf("%d. Confirm selection\n", len(denominations)+1)
		c.printf("%d. Cancel %s\n", len(denominations)+2, flow)

		line, ok := c.prompt("\nChoose option: ")
		if !ok {
			return nil
		}
		choice, err := strconv.Atoi(line)
		if err != nil {
			c.printf("Invalid input. Please enter a valid option number.\n")
			continue
		}

		switch {
		case choice >= 1 && choice <= len(denominations):
			if !c.addNotes(alloc, denominations[choice-1], vault, stockLimited) {
				return nil
			}
		case choice == len(denominations)+1:
			c.printf("Insufficient amount selected. Need %s more.\n", alloc.Remaining())
		case choice == len(denominations)+2:
			return nil
		default:
			c.printf("Invalid option. Please try again.\n")
		}
	}

	c.printf("Selection confirmed: %s\n", alloc.SelectedValue())
	return alloc
}

// addNotes prompts for a count of one denomination and folds it into the
// selection. Returns false only when input ends; a rejected count keeps the
// selection loop going.
func (c *console) addNotes(alloc *vaultmodels.Allocation, d vaultmodels.Denomination, vault noteView, stockLimited bool) bool {
	line, ok := c.prompt(fmt.Sprintf("How many %s notes? ", d))
	if !ok {
		return false
	}
	count, err := strconv.Atoi(line)
	if err != nil {
		c.printf("Invalid input. Please enter a valid option number.\n")
		return true
	}
	if count <= 0 {
		c.printf("Invalid quantity.\n")
		return true
	}

	value := d.Value().Mul(int64(count))
	if alloc.SelectedValue().Add(value).Sub(alloc.Target()).IsPositive() {
		c.printf("Error: That would exceed the requested amount of %s.\n", alloc.Target())
		return true
	}

	if stockLimited {
		available, err := vault.QuantityOf(d)
		if err != nil {
			c.printf("Invalid option. Please try again.\n")
			return true
		}
		// The check is cumulative over the whole selection, not just this
		// add, so a selection can never claim more notes than exist.
		if available < alloc.Count(d)+count {
			c.printf("Error: Only %d x %s notes available.\n", available, d)
			return true
		}
	}

	alloc.Add(d, count)
	c.printf("Added %d x %s notes.\n", count, d)
	return true
}

// printInventory renders one line per denomination with the held quantity
// and its total face value.
func (c *console) printInventory(vault noteView) {
	for _, d := range vault.Denominations() {
		qty, err := vault.QuantityOf(d)
		if err != nil {
			continue
		}
		c.printf("$%-3d (%3d notes) = %s\n", int(d), qty, d.Value().Mul(int64(qty)))
	}
}
