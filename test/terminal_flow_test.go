package test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	accountservice "cashpoint/internal/account/service"
	"cashpoint/internal/audit"
	authservice "cashpoint/internal/auth/service"
	machineservice "cashpoint/internal/machine/service"
	"cashpoint/internal/platform/logger"
	"cashpoint/internal/storage"
	"cashpoint/internal/storage/memory"
	"cashpoint/internal/transport/term"
	vaultmodels "cashpoint/internal/vault/models"
	vaultservice "cashpoint/internal/vault/service"
	"cashpoint/pkg/money"
	"cashpoint/pkg/testutil"
)

// TestFullShiftScenario drives one complete shift end to end through the
// scripted terminal: a cardholder withdrawal with manual note selection,
// then a technician cash refill, over a seeded in-memory store.
func TestFullShiftScenario(t *testing.T) {
	testutil.Given(t, "a terminal booted on factory defaults", func(t *testing.T) {
		ctx := context.Background()
		gateway := memory.New(storage.DefaultSeed())
		trail := audit.NewRecorder(gateway)

		accounts, err := accountservice.New(ctx, gateway, trail,
			accountservice.WithLogger(logger.Discard()))
		if err != nil {
			t.Fatalf("account service: %v", err)
		}
		machine, err := machineservice.New(ctx, gateway,
			machineservice.WithLogger(logger.Discard()))
		if err != nil {
			t.Fatalf("machine service: %v", err)
		}
		stock, err := gateway.LoadNoteStock(ctx)
		if err != nil {
			t.Fatalf("load note stock: %v", err)
		}
		ledger, err := vaultmodels.NewNoteLedger(stock)
		if err != nil {
			t.Fatalf("note ledger: %v", err)
		}
		vault := vaultservice.NewReconciler(ledger, machine, accounts, gateway,
			vaultservice.WithLogger(logger.Discard()))
		auth := authservice.New(accounts, gateway, authservice.WithLogger(logger.Discard()))

		script := strings.Join([]string{
			"1", "1001", "1234", // cardholder login
			"2", "35", // withdraw $35
			"3", "1", "4", "1", "5", "1", // 1x$20, 1x$10, 1x$5
			"7",                  // log out
			"2", "admin", "1234", // technician login
			"2", "500", "1", "5", // refill $500 as 5x$100
			"7", // end technician session
			"3", // shut the terminal down
		}, "\n") + "\n"

		out := &bytes.Buffer{}

		testutil.When(t, "a withdrawal and a cash refill run back to back", func(t *testing.T) {
			terminal := term.New(strings.NewReader(script), out,
				auth, accounts, vault, machine, trail,
				term.WithLogger(logger.Discard()))
			if err := terminal.Run(ctx); err != nil {
				t.Fatalf("terminal run: %v", err)
			}

			testutil.Then(t, "the screens show both operations completing", func(t *testing.T) {
				for _, want := range []string{
					"Withdrawal successful! Dispensing $35.00",
					"Bank Notes Dispensed: 1x$20, 1x$10, 1x$5",
					"ATM refilled with $500.00",
					"New ATM balance: $12465.00",
					"Thank you for using the ATM. Goodbye!",
				} {
					if !strings.Contains(out.String(), want) {
						t.Errorf("output missing %q", want)
					}
				}
			})

			testutil.Then(t, "account, machine, and note stock reconcile", func(t *testing.T) {
				balance, err := accounts.Balance(ctx, "1001")
				if err != nil {
					t.Fatalf("balance: %v", err)
				}
				if want := money.FromDollars(1465); balance != want {
					t.Errorf("balance = %s, want %s", balance, want)
				}
				if want := money.FromDollars(12465); vault.CashTotal() != want {
					t.Errorf("vault cash = %s, want %s", vault.CashTotal(), want)
				}
				state, err := gateway.LoadMachineState(ctx)
				if err != nil {
					t.Fatalf("machine state: %v", err)
				}
				if state.Cash != vault.CashTotal() {
					t.Errorf("machine cash %s diverged from vault cash %s", state.Cash, vault.CashTotal())
				}
			})

			testutil.Then(t, "the audit trail records both operations", func(t *testing.T) {
				history, err := trail.TransactionHistory(ctx, "1001")
				if err != nil {
					t.Fatalf("history: %v", err)
				}
				if len(history) != 1 || history[0].Type != audit.TypeWithdrawal {
					t.Fatalf("history = %+v, want one withdrawal", history)
				}
				if history[0].NoteBreakdown != "1x$20, 1x$10, 1x$5" {
					t.Errorf("breakdown = %q", history[0].NoteBreakdown)
				}

				activities, err := trail.ActivityLog(ctx)
				if err != nil {
					t.Fatalf("activity log: %v", err)
				}
				if len(activities) != 1 || activities[0].Type != audit.ActivityCashRefill {
					t.Fatalf("activities = %+v, want one cash refill", activities)
				}
			})
		})
	})
}
