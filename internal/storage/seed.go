package storage

import (
	"time"

	accountmodels "cashpoint/internal/account/models"
	authmodels "cashpoint/internal/auth/models"
	machinemodels "cashpoint/internal/machine/models"
	vaultmodels "cashpoint/internal/vault/models"
	"cashpoint/pkg/money"
)

// SeedData is the factory-default dataset a fresh store starts from. SQL
// stores apply it only to empty tables, so an existing database is never
// reseeded; the in-memory store always starts from it.
type SeedData struct {
	Accounts    []*accountmodels.Account
	NoteStock   map[vaultmodels.Denomination]int
	Machine     machinemodels.State
	Technicians []authmodels.Technician
}

// DefaultSeed returns the factory defaults a new terminal ships with.
// The machine cash counter is computed from the note stock rather than
// written as a literal, so the cash/stock invariant holds from the first
// boot.
func DefaultSeed() SeedData {
	stock := map[vaultmodels.Denomination]int{
		5:   100,
		10:  100,
		20:  150,
		50:  50,
		100: 50,
	}

	var cash money.Amount
	for d, q := range stock {
		cash = cash.Add(d.Value().Mul(int64(q)))
	}

	now := time.Now()
	return SeedData{
		Accounts: []*accountmodels.Account{
			{Number: "1001", Holder: "John Doe", Balance: money.FromDollars(1500), PIN: "1234"},
			{Number: "1002", Holder: "Jane Smith", Balance: money.FromDollars(2500), PIN: "5678"},
			{Number: "1003", Holder: "Bob Johnson", Balance: money.FromCents(339050), PIN: "2222"},
		},
		NoteStock: stock,
		Machine: machinemodels.State{
			Cash:        cash,
			PaperSheets: 50,
			InkUnits:    500,
			LastUpdated: now,
		},
		Technicians: []authmodels.Technician{
			{Username: "admin", Password: "1234", FullName: "System Administrator", Role: "TECHNICIAN"},
		},
	}
}
