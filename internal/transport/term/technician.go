package term

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"cashpoint/internal/audit"
	authmodels "cashpoint/internal/auth/models"
	machinemodels "cashpoint/internal/machine/models"
	machineservice "cashpoint/internal/machine/service"
	vaultmodels "cashpoint/internal/vault/models"
	vaultservice "cashpoint/internal/vault/service"
	"cashpoint/pkg/money"
)

// Maintenance is the machine surface a technician session can reach.
type Maintenance interface {
	RefillPaper(ctx context.Context, sheets int) (machinemodels.State, error)
	RefillInk(ctx context.Context, units int) (machinemodels.State, error)
	Status(ctx context.Context) machineservice.Status
}

// ActivityViewer reads the technician activity log.
type ActivityViewer interface {
	ActivityLog(ctx context.Context) ([]audit.ActivityRecord, error)
}

// AccountDirectory is the slice of the account service a technician can
// reach: aggregate counts only, never balances or PINs.
type AccountDirectory interface {
	Count() int
}

type technicianSession struct {
	*console
	logger    *slog.Logger
	session   authmodels.Session
	vault     Dispenser
	machine   Maintenance
	trail     ActivityViewer
	directory AccountDirectory
}

func (t *Terminal) newTechnicianSession(session authmodels.Session) *technicianSession {
	return &technicianSession{
		console:   &t.console,
		logger:    t.logger,
		session:   session,
		vault:     t.vault,
		machine:   t.machine,
		trail:     t.trail,
		directory: t.accounts,
	}
}

func (s *technicianSession) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.printf("\nTechnician Session:\n")
		s.printf("1. View ATM Status\n")
		s.printf("2. Add Cash to ATM\n")
		s.printf("3. Add Ink to ATM\n")
		s.printf("4. Add Paper to ATM\n")
		s.printf("5. Collect Income (Cash from ATM)\n")
		s.printf("6. View Activity Log\n")
		s.printf("7. Exit Technician Session\n")
		choice, ok := s.prompt("Choose an option: ")
		if !ok {
			return
		}

		switch choice {
		case "1":
			s.status(operationContext(ctx))
		case "2":
			s.refillCash(operationContext(ctx))
		case "3":
			s.refillInk(operationContext(ctx))
		case "4":
			s.refillPaper(operationContext(ctx))
		case "5":
			s.collectCash(operationContext(ctx))
		case "6":
			s.activityLog(operationContext(ctx))
		case "7":
			return
		default:
			s.printf("Invalid choice. Please try again.\n")
		}
	}
}

func (s *technicianSession) status(ctx context.Context) {
	status := s.machine.Status(ctx)

	s.printf("\n[ATM STATUS]\n")
	s.printf("ATM Cash: %s\n", status.State.Cash)
	s.printf("Paper Sheets: %d\n", status.State.PaperSheets)
	s.printf("Ink Units: %d\n", status.State.InkUnits)
	s.printf("Active Accounts: %d\n", s.directory.Count())

	s.printf("\n[BANK NOTES INVENTORY]\n")
	s.printInventory(s.vault)

	s.printf("\n[SYSTEM DIAGNOSTICS]\n")
	printer := "OK"
	if !status.State.CanPrintReceipt() {
		printer = "LOW ON SUPPLIES"
	}
	s.printf("Receipt Printer: %s\n", printer)
	for _, counter := range status.Counters {
		s.printf("%s\n", counter)
	}
}

func (s *technicianSession) refillCash(ctx context.Context) {
	line, ok := s.prompt("Enter amount to refill: $")
	if !ok {
		return
	}
	amount, err := money.Parse(line)
	if err != nil {
		s.printf("Invalid input.\n")
		return
	}
	if !amount.IsPositive() {
		s.printf("Invalid amount.\n")
		return
	}

	s.printf("\n=== Current Bank Notes Inventory ===\n")
	s.printInventory(s.vault)
	s.printf("Select which bank notes you want to add:\n")

	alloc := s.collectSelection(amount, "refill", s.vault, false)
	if alloc == nil {
		s.printf("Cash refill cancelled.\n")
		return
	}

	result, err := s.vault.Commit(ctx, vaultservice.OperationRequest{
		Kind:       vaultmodels.KindRefill,
		Allocation: alloc,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "cash refill failed", "error", err)
		s.printf("Error: Cash refill could not be completed. Please try again.\n")
		return
	}

	s.printf("ATM refilled with %s\n", result.Amount)
	s.printf("Bank Notes Added: %s\n", result.Breakdown)
	s.printf("New ATM balance: %s\n", result.NewCash)
}

func (s *technicianSession) collectCash(ctx context.Context) {
	line, ok := s.prompt("Enter amount to collect: $")
	if !ok {
		return
	}
	amount, err := money.Parse(line)
	if err != nil {
		s.printf("Invalid input.\n")
		return
	}
	if !amount.IsPositive() || amount.Sub(s.vault.CashTotal()).IsPositive() {
		s.printf("Invalid amount or insufficient ATM cash.\n")
		return
	}

	s.printf("\n=== Current Bank Notes Inventory ===\n")
	s.printInventory(s.vault)
	s.printf("Select which bank notes you want to collect:\n")

	alloc := s.collectSelection(amount, "collection", s.vault, true)
	if alloc == nil {
		s.printf("Cash collection cancelled.\n")
		return
	}

	result, err := s.vault.Commit(ctx, vaultservice.OperationRequest{
		Kind:       vaultmodels.KindCollect,
		Allocation: alloc,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "cash collection failed", "error", err)
		s.printf("Error: Cash collection could not be completed. Please try again.\n")
		return
	}

	s.printf("Cash collected: %s\n", result.Amount)
	s.printf("Bank Notes Collected: %s\n", result.Breakdown)
	s.printf("Remaining ATM balance: %s\n", result.NewCash)
}

func (s *technicianSession) refillPaper(ctx context.Context) {
	line, ok := s.prompt("Enter number of sheets to add: ")
	if !ok {
		return
	}
	sheets, err := strconv.Atoi(line)
	if err != nil {
		s.printf("Invalid input.\n")
		return
	}

	state, err := s.machine.RefillPaper(ctx, sheets)
	if err != nil {
		if errors.Is(err, machinemodels.ErrInvalidSupplyCount) {
			s.printf("Invalid amount.\n")
			return
		}
		s.logger.WarnContext(ctx, "paper refill failed", "error", err)
		s.printf("Error: Paper refill could not be completed. Please try again.\n")
		return
	}

	s.printf("Paper refilled with %d sheets\n", sheets)
	s.printf("New paper level: %d sheets\n", state.PaperSheets)
}

func (s *technicianSession) refillInk(ctx context.Context) {
	line, ok := s.prompt("Enter number of ink units to add: ")
	if !ok {
		return
	}
	units, err := strconv.Atoi(line)
	if err != nil {
		s.printf("Invalid input.\n")
		return
	}

	state, err := s.machine.RefillInk(ctx, units)
	if err != nil {
		if errors.Is(err, machinemodels.ErrInvalidSupplyCount) {
			s.printf("Invalid amount.\n")
			return
		}
		s.logger.WarnContext(ctx, "ink refill failed", "error", err)
		s.printf("Error: Ink refill could not be completed. Please try again.\n")
		return
	}

	s.printf("Ink refilled with %d units\n", units)
	s.printf("New ink level: %d units\n", state.InkUnits)
}

func (s *technicianSession) activityLog(ctx context.Context) {
	records, err := s.trail.ActivityLog(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "activity log lookup failed", "error", err)
		s.printf("Unable to load activity log.\n")
		return
	}

	rule := strings.Repeat("=", 130)
	s.printf("\n%s\n", rule)
	s.printf("%-5s | %-20s | %-12s | %-20s | %-15s | %-15s | %s\n",
		"ID", "Activity", "Amount", "Description", "Prev Value", "New Value", "Timestamp")
	s.printf("%s\n", rule)
	for _, rec := range records {
		s.printf("%-5d | %-20s | %-12s | %-20s | %-15s | %-15s | %s\n",
			rec.ID, rec.Type, activityAmount(rec), rec.Description,
			activityValue(rec.Type, rec.PreviousValue), activityValue(rec.Type, rec.NewValue),
			rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if len(records) == 0 {
		s.printf("No technician activities found.\n")
	}
	s.printf("%s\n", rule)
}

// Cash activities store cents, supply refills raw unit counts; each renders
// in its native form.
func activityAmount(rec audit.ActivityRecord) string {
	switch rec.Type {
	case audit.ActivityCashRefill, audit.ActivityCashCollection:
		return money.FromCents(rec.Amount).String()
	default:
		return strconv.FormatInt(rec.Amount, 10)
	}
}

func activityValue(kind audit.ActivityType, value int64) string {
	switch kind {
	case audit.ActivityCashRefill, audit.ActivityCashCollection:
		return money.FromCents(value).Format()
	default:
		return strconv.FormatInt(value, 10)
	}
}
