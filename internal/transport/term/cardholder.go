package term

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	authmodels "cashpoint/internal/auth/models"
	machinemodels "cashpoint/internal/machine/models"
	vaultmodels "cashpoint/internal/vault/models"
	vaultservice "cashpoint/internal/vault/service"
	"cashpoint/pkg/money"
	"cashpoint/pkg/platform/sentinel"
)

// CardholderAccounts is the slice of the account service a logged-in
// cardholder can reach.
type CardholderAccounts interface {
	Balance(ctx context.Context, number string) (money.Amount, error)
	Deposit(ctx context.Context, number string, amount money.Amount) (*accountmodels.Account, error)
	Transfer(ctx context.Context, from, to string, amount money.Amount) (*accountmodels.Account, error)
	ChangePIN(ctx context.Context, number, newPIN string) error
	History(ctx context.Context, number string) ([]audit.TransactionRecord, error)
}

// Dispenser is the cash reconciler surface the terminal needs: the note
// view for selection screens, the commit entry point, and the cash total
// for prechecks. Both roles use it; dispenses, refills, and collections all
// go through the same commit protocol.
type Dispenser interface {
	noteView
	Commit(ctx context.Context, req vaultservice.OperationRequest) (*vaultservice.Result, error)
	CashTotal() money.Amount
}

// ReceiptPrinter is the machine surface a cardholder session can reach.
type ReceiptPrinter interface {
	Snapshot() machinemodels.State
	DebitReceipt(ctx context.Context) (machinemodels.State, bool)
}

type cardholderSession struct {
	*console
	logger   *slog.Logger
	session  authmodels.Session
	accounts CardholderAccounts
	vault    Dispenser
	printer  ReceiptPrinter
}

func (t *Terminal) newCardholderSession(session authmodels.Session) *cardholderSession {
	return &cardholderSession{
		console:  &t.console,
		logger:   t.logger,
		session:  session,
		accounts: t.accounts,
		vault:    t.vault,
		printer:  t.machine,
	}
}

func (s *cardholderSession) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.printf("\n=== USER MENU ===\n")
		s.printf("1. View Account Balance\n")
		s.printf("2. Withdraw Funds\n")
		s.printf("3. Deposit Funds\n")
		s.printf("4. Transfer Funds\n")
		s.printf("5. View Transaction History\n")
		s.printf("6. Change PIN\n")
		s.printf("7. Exit User Session\n")
		choice, ok := s.prompt("Choose an option: ")
		if !ok {
			return
		}

		switch choice {
		case "1":
			s.checkBalance(operationContext(ctx))
		case "2":
			s.withdraw(operationContext(ctx))
		case "3":
			s.deposit(operationContext(ctx))
		case "4":
			s.transfer(operationContext(ctx))
		case "5":
			s.history(operationContext(ctx))
		case "6":
			s.changePIN(operationContext(ctx))
		case "7":
			s.printf("Logging out...\n")
			return
		default:
			s.printf("Invalid choice. Please try again.\n")
		}
	}
}

// showAccountInfo renders the account screen. Reports false when the
// balance could not be loaded.
func (s *cardholderSession) showAccountInfo(ctx context.Context) bool {
	balance, err := s.accounts.Balance(ctx, s.session.AccountNumber)
	if err != nil {
		s.logger.WarnContext(ctx, "balance lookup failed",
			"account", s.session.AccountNumber, "error", err)
		s.printf("Unable to load account information.\n")
		return false
	}

	s.printf("\n--- Account Information ---\n")
	s.printf("Account Holder: %s\n", s.session.DisplayName)
	s.printf("Account Number: %s\n", s.session.AccountNumber)
	s.printf("Current Balance: %s\n", balance)
	return true
}

func (s *cardholderSession) checkBalance(ctx context.Context) {
	if s.showAccountInfo(ctx) {
		s.printReceipt(ctx)
	}
}

func (s *cardholderSession) withdraw(ctx context.Context) {
	s.showAccountInfo(ctx)
	amount, ok := s.promptAmount("\nEnter withdrawal amount (or 0 to cancel): $")
	if !ok {
		return
	}
	if amount.IsZero() {
		s.printf("Withdrawal cancelled.\n")
		return
	}
	if amount.Sub(s.vault.CashTotal()).IsPositive() {
		s.printf("Error: ATM does not have sufficient cash available for this withdrawal.\n")
		return
	}

	s.printInventory(s.vault)
	alloc := s.collectSelection(amount, "withdrawal", s.vault, true)
	if alloc == nil {
		s.printf("Withdrawal cancelled.\n")
		return
	}

	result, err := s.vault.Commit(ctx, vaultservice.OperationRequest{
		Kind:          vaultmodels.KindDispense,
		Allocation:    alloc,
		AccountNumber: s.session.AccountNumber,
	})
	if err != nil {
		s.printf("%s\n", dispenseFailureMessage(err))
		return
	}

	s.printf("Withdrawal successful! Dispensing %s\n", result.Amount)
	s.printf("Bank Notes Dispensed: %s\n", result.Breakdown)
	s.printf("Remaining Balance: %s\n", result.NewBalance)
	s.printReceipt(ctx)
}

func dispenseFailureMessage(err error) string {
	switch {
	case errors.Is(err, vaultmodels.ErrInsufficientFunds):
		return "Error: Insufficient funds in your account."
	case errors.Is(err, vaultmodels.ErrInsufficientStock):
		return "Error: Not enough notes available for this selection."
	case errors.Is(err, vaultmodels.ErrPersistence):
		return "Error: Transaction failed and was rolled back. Please try again."
	default:
		return "Unable to dispense selected bank notes. Please try again."
	}
}

func (s *cardholderSession) deposit(ctx context.Context) {
	s.showAccountInfo(ctx)
	amount, ok := s.promptAmount("\nEnter deposit amount (or 0 to cancel): $")
	if !ok {
		return
	}
	if amount.IsZero() {
		s.printf("Deposit cancelled.\n")
		return
	}

	account, err := s.accounts.Deposit(ctx, s.session.AccountNumber, amount)
	if err != nil {
		s.logger.WarnContext(ctx, "deposit failed",
			"account", s.session.AccountNumber, "error", err)
		s.printf("Error: Deposit could not be completed. Please try again.\n")
		return
	}

	s.printf("Deposit successful! Amount deposited: %s\n", amount)
	s.printf("New Balance: %s\n", account.Balance)
	s.printReceipt(ctx)
}

func (s *cardholderSession) transfer(ctx context.Context) {
	s.showAccountInfo(ctx)
	recipient, ok := s.prompt("\nEnter recipient account number: ")
	if !ok {
		return
	}
	amount, ok := s.promptAmount("Enter transfer amount (or 0 to cancel): $")
	if !ok {
		return
	}
	if amount.IsZero() {
		s.printf("Transfer cancelled.\n")
		return
	}

	sender, err := s.accounts.Transfer(ctx, s.session.AccountNumber, recipient, amount)
	if err != nil {
		s.printf("%s\n", transferFailureMessage(err))
		return
	}

	s.printf("Transfer successful!\n")
	s.printf("Transferred: %s to account %s\n", amount, recipient)
	s.printf("Your new balance: %s\n", sender.Balance)
	s.printReceipt(ctx)
}

func transferFailureMessage(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return "Error: Recipient account not found."
	case errors.Is(err, accountmodels.ErrSameAccount):
		return "Error: Cannot transfer to the same account."
	case errors.Is(err, accountmodels.ErrInsufficientFunds):
		return "Error: Insufficient funds in your account."
	default:
		return "Error: Transfer could not be completed. Please try again."
	}
}

// history prints the account's recent transactions as a printed receipt.
// Unlike the per-transaction receipt this one is load-bearing: no supplies,
// no history screen.
func (s *cardholderSession) history(ctx context.Context) {
	state := s.printer.Snapshot()
	if state.PaperSheets < 1 {
		s.printf("Error: No paper available to print receipt.\n")
		return
	}
	if state.InkUnits < 1 {
		s.printf("Error: No ink available to print receipt.\n")
		return
	}

	records, err := s.accounts.History(ctx, s.session.AccountNumber)
	if err != nil {
		s.logger.WarnContext(ctx, "history lookup failed",
			"account", s.session.AccountNumber, "error", err)
		s.printf("Unable to load transaction history.\n")
		return
	}

	rule := strings.Repeat("=", 100)
	s.printf("\n=== TRANSACTION HISTORY FOR ACCOUNT %s ===\n", s.session.AccountNumber)
	s.printf("\n%s\n", rule)
	s.printf("%-5s | %-20s | %-12s | %-12s | %-12s | %s\n",
		"ID", "Type", "Amount", "Prev Balance", "New Balance", "Timestamp")
	s.printf("%s\n", rule)
	for _, rec := range records {
		s.printf("%-5d | %-20s | $%-11s | $%-11s | $%-11s | %s\n",
			rec.ID, rec.Type, rec.Amount.Format(), rec.PreviousBalance.Format(),
			rec.NewBalance.Format(), rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if len(records) == 0 {
		s.printf("No transaction history found for this account.\n")
	}
	s.printf("%s\n", rule)

	if state, ok := s.printer.DebitReceipt(ctx); ok {
		s.printf("\n=== RECEIPT ===\n")
		s.printf("Paper: %d sheets left\n", state.PaperSheets)
		s.printf("Ink: %d units left\n", state.InkUnits)
		s.printf("================\n\n")
	} else {
		s.printf("Warning: Receipt printer unavailable.\n")
	}
}

func (s *cardholderSession) changePIN(ctx context.Context) {
	newPIN, ok := s.prompt("Enter New PIN (4 digits): ")
	if !ok {
		return
	}
	confirm, ok := s.prompt("Confirm New PIN: ")
	if !ok {
		return
	}
	if newPIN != confirm {
		s.printf("PINs do not match, empty, or invalid format. PIN change cancelled.\n")
		return
	}

	if err := s.accounts.ChangePIN(ctx, s.session.AccountNumber, newPIN); err != nil {
		if errors.Is(err, accountmodels.ErrInvalidPIN) {
			s.printf("PINs do not match, empty, or invalid format. PIN change cancelled.\n")
			return
		}
		s.logger.WarnContext(ctx, "pin change failed",
			"account", s.session.AccountNumber, "error", err)
		s.printf("Error: PIN change could not be completed. Please try again.\n")
		return
	}
	s.printf("PIN changed successfully.\n")
}

// printReceipt prints the supplies line after a successful operation.
// Receipts are best effort: a shortage warns and the operation stands.
func (s *cardholderSession) printReceipt(ctx context.Context) {
	state, ok := s.printer.DebitReceipt(ctx)
	if !ok {
		if state.PaperSheets < 1 {
			s.printf("Warning: Out of paper. Cannot print receipt.\n")
		}
		if state.InkUnits < 1 {
			s.printf("Warning: Out of ink. Cannot print receipt.\n")
		}
		if state.PaperSheets >= 1 && state.InkUnits >= 1 {
			s.printf("Warning: Receipt printer unavailable.\n")
		}
		return
	}
	s.printf("Receipt printed - Paper: %d sheets left, Ink: %d units left\n",
		state.PaperSheets, state.InkUnits)
}
