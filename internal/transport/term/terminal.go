// Package term implements the interactive terminal: the entry menu, the
// cardholder and technician sessions, and the note selection screen. It is a
// view over the services; no business rule lives here. Every decision that
// moves money or notes is delegated, and only its outcome is rendered.
package term

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	authmodels "cashpoint/internal/auth/models"
	"cashpoint/pkg/money"
	"cashpoint/pkg/requestcontext"
)

// Authenticator verifies credentials and opens role-bound sessions.
type Authenticator interface {
	AuthenticateCardholder(ctx context.Context, accountNumber, pin string) (authmodels.Session, error)
	AuthenticateTechnician(ctx context.Context, username, password string) (authmodels.Session, error)
}

// Accounts is the full account surface the terminal wires in. Sessions
// narrow it by role: a cardholder session holds only CardholderAccounts and
// a technician session only AccountDirectory, so neither role can reach the
// other's operations.
type Accounts interface {
	CardholderAccounts
	AccountDirectory
}

// Machine is the full machine surface the terminal wires in, narrowed the
// same way: cardholders print receipts, technicians maintain supplies.
type Machine interface {
	Maintenance
	ReceiptPrinter
}

// Terminal runs the interactive menus over an input and an output stream.
type Terminal struct {
	console
	auth     Authenticator
	accounts Accounts
	vault    Dispenser
	machine  Machine
	trail    ActivityViewer
	logger   *slog.Logger
}

// Option configures a Terminal.
type Option func(t *Terminal)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Terminal) {
		t.logger = logger
	}
}

// New builds a terminal over the given streams and service surfaces.
func New(in io.Reader, out io.Writer, auth Authenticator, accounts Accounts, vault Dispenser, machine Machine, trail ActivityViewer, opts ...Option) *Terminal {
	t := &Terminal{
		console:  console{in: bufio.NewScanner(in), out: out},
		auth:     auth,
		accounts: accounts,
		vault:    vault,
		machine:  machine,
		trail:    trail,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Run drives the entry menu until the operator exits, input ends, or the
// context is cancelled.
func (t *Terminal) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.printf("\n=== ATM SYSTEM ===\n")
		t.printf("1. User Login\n")
		t.printf("2. Technician Login\n")
		t.printf("3. Exit\n")
		choice, ok := t.prompt("> ")
		if !ok {
			return nil
		}

		switch choice {
		case "1":
			t.cardholderLogin(ctx)
		case "2":
			t.technicianLogin(ctx)
		case "3":
			t.printf("Thank you for using the ATM. Goodbye!\n")
			return nil
		default:
			t.printf("Invalid choice. Please try again.\n")
		}
	}
}

func (t *Terminal) cardholderLogin(ctx context.Context) {
	number, ok := t.prompt("Enter Account Number: ")
	if !ok {
		return
	}
	pin, ok := t.prompt("Enter PIN: ")
	if !ok {
		return
	}

	session, err := t.auth.AuthenticateCardholder(operationContext(ctx), number, pin)
	if err != nil {
		if !errors.Is(err, authmodels.ErrBadCredentials) {
			t.logger.WarnContext(ctx, "cardholder login failed", "error", err)
		}
		t.printf("Invalid account number or PIN.\n")
		return
	}

	ctx = requestcontext.WithSessionID(ctx, session.ID.String())
	t.newCardholderSession(session).run(ctx)
}

func (t *Terminal) technicianLogin(ctx context.Context) {
	username, ok := t.prompt("Username: ")
	if !ok {
		return
	}
	password, ok := t.prompt("Password: ")
	if !ok {
		return
	}

	session, err := t.auth.AuthenticateTechnician(operationContext(ctx), username, password)
	if err != nil {
		if !errors.Is(err, authmodels.ErrBadCredentials) {
			t.logger.WarnContext(ctx, "technician login failed", "error", err)
		}
		t.printf("Access Denied: Invalid Credentials.\n")
		return
	}

	ctx = requestcontext.WithSessionID(ctx, session.ID.String())
	t.newTechnicianSession(session).run(ctx)
}

// operationContext stamps one terminal action with a fresh operation id so
// every log line and audit write downstream of it correlates.
func operationContext(ctx context.Context) context.Context {
	return requestcontext.WithOperationID(ctx, uuid.NewString())
}

// console pairs a line scanner with an output stream. Prompts report
// ok=false at end of input, and every menu loop treats that as an exit.
type console struct {
	in  *bufio.Scanner
	out io.Writer
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) prompt(label string) (string, bool) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// promptAmount reads a dollar amount for the cardholder flows. It reports
// ok=false after printing the matching message when the input is unparsable
// or negative; a zero amount is returned as-is so each flow can report its
// own cancellation.
func (c *console) promptAmount(label string) (money.Amount, bool) {
	line, ok := c.prompt(label)
	if !ok {
		return money.Zero, false
	}
	amount, err := money.Parse(line)
	if err != nil {
		c.printf("Invalid amount entered.\n")
		return money.Zero, false
	}
	if amount.IsNegative() {
		c.printf("Invalid amount.\n")
		return money.Zero, false
	}
	return amount, true
}
