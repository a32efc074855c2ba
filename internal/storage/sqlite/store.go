// Package sqlite provides the default persistence gateway: a single local
// database file, which matches how a standalone terminal actually runs. The
// driver is pure Go, so the binary stays cgo-free.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	accountmodels "cashpoint/internal/account/models"
	"cashpoint/internal/audit"
	authmodels "cashpoint/internal/auth/models"
	machinemodels "cashpoint/internal/machine/models"
	"cashpoint/internal/storage"
	vaultmodels "cashpoint/internal/vault/models"
	"cashpoint/pkg/money"
	"cashpoint/pkg/platform/sentinel"
	txcontext "cashpoint/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_number TEXT PRIMARY KEY,
	account_holder TEXT NOT NULL,
	balance_cents INTEGER NOT NULL CHECK (balance_cents >= 0),
	pin TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS machine_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	cash_cents INTEGER NOT NULL CHECK (cash_cents >= 0),
	paper_sheets INTEGER NOT NULL CHECK (paper_sheets >= 0),
	ink_units INTEGER NOT NULL CHECK (ink_units >= 0),
	last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bank_notes (
	denomination INTEGER PRIMARY KEY,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_number TEXT NOT NULL,
	account_holder TEXT NOT NULL,
	transaction_type TEXT NOT NULL,
	amount_cents INTEGER NOT NULL,
	previous_balance_cents INTEGER NOT NULL,
	new_balance_cents INTEGER NOT NULL,
	note_breakdown TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_number, id);

CREATE TABLE IF NOT EXISTS technician_activities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_type TEXT NOT NULL,
	amount INTEGER NOT NULL,
	description TEXT NOT NULL,
	previous_value INTEGER NOT NULL,
	new_value INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS technicians (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	full_name TEXT NOT NULL,
	role TEXT NOT NULL
);
`

// Gateway implements storage.Gateway on a SQLite file.
type Gateway struct {
	db *sql.DB
}

// Open creates or opens the database file, applies the schema, and seeds
// empty tables. An existing database keeps its data untouched.
func Open(path string, seed storage.SeedData) (*Gateway, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection avoids busy errors
	// without a retry loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	g := &Gateway{db: db}
	if err := g.applySeed(context.Background(), seed); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

func (g *Gateway) applySeed(ctx context.Context, seed storage.SeedData) error {
	return g.RunInTx(ctx, func(txCtx context.Context) error {
		empty, err := g.tableEmpty(txCtx, "accounts")
		if err != nil {
			return err
		}
		if empty {
			for _, a := range seed.Accounts {
				if err := g.CreateAccount(txCtx, a); err != nil {
					return err
				}
			}
		}

		if empty, err = g.tableEmpty(txCtx, "machine_state"); err != nil {
			return err
		} else if empty {
			ex := txcontext.ExecutorFor(txCtx, g.db)
			_, err = ex.ExecContext(txCtx, `
				INSERT INTO machine_state (id, cash_cents, paper_sheets, ink_units, last_updated)
				VALUES (1, ?, ?, ?, ?)`,
				seed.Machine.Cash.Cents(), seed.Machine.PaperSheets, seed.Machine.InkUnits,
				formatTime(seed.Machine.LastUpdated))
			if err != nil {
				return fmt.Errorf("seed machine state: %w", err)
			}
		}

		if empty, err = g.tableEmpty(txCtx, "bank_notes"); err != nil {
			return err
		} else if empty {
			if err := g.SaveNoteStock(txCtx, seed.NoteStock); err != nil {
				return err
			}
		}

		if empty, err = g.tableEmpty(txCtx, "technicians"); err != nil {
			return err
		} else if empty {
			ex := txcontext.ExecutorFor(txCtx, g.db)
			for _, t := range seed.Technicians {
				_, err = ex.ExecContext(txCtx, `
					INSERT INTO technicians (username, password, full_name, role)
					VALUES (?, ?, ?, ?)`,
					t.Username, t.Password, t.FullName, t.Role)
				if err != nil {
					return fmt.Errorf("seed technician: %w", err)
				}
			}
		}
		return nil
	})
}

func (g *Gateway) tableEmpty(ctx context.Context, table string) (bool, error) {
	ex := txcontext.ExecutorFor(ctx, g.db)
	var count int
	if err := ex.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count); err != nil {
		return false, fmt.Errorf("count %s: %w", table, err)
	}
	return count == 0, nil
}

func (g *Gateway) LoadAccounts(ctx context.Context) ([]*accountmodels.Account, error) {
	ex := txcontext.ExecutorFor(ctx, g.db)
	rows, err := ex.QueryContext(ctx, `
		SELECT account_number, account_holder, balance_cents, pin
		FROM accounts ORDER BY account_number`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []*accountmodels.Account
	for rows.Next() {
		var a accountmodels.Account
		var balance int64
		if err := rows.Scan(&a.Number, &a.Holder, &balance, &a.PIN); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Balance = money.FromCents(balance)
		accounts = append(accounts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return accounts, nil
}

func (g *Gateway) LoadMachineState(ctx context.Context) (machinemodels.State, error) {
	ex := txcontext.ExecutorFor(ctx, g.db)
	var (
		state   machinemodels.State
		cash    int64
		updated string
	)
	err := ex.QueryRowContext(ctx, `
		SELECT cash_cents, paper_sheets, ink_units, last_updated
		FROM machine_state WHERE id = 1`).
		Scan(&cash, &state.PaperSheets, &state.InkUnits, &updated)
	if err == sql.ErrNoRows {
		return machinemodels.State{}, fmt.Errorf("machine state: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return machinemodels.State{}, fmt.Errorf("load machine state: %w", err)
	}
	state.Cash = money.FromCents(cash)
	state.LastUpdated, err = parseTime(updated)
	if err != nil {
		return machinemodels.State{}, fmt.Errorf("load machine state: %w", err)
	}
	return state, nil
}

func (g *Gateway) LoadNoteStock(ctx context.Context) (map[vaultmodels.Denomination]int, error) {
	ex := txcontext.ExecutorFor(ctx, g.db)
	rows, err := ex.QueryContext(ctx, `SELECT denomination, quantity FROM bank_notes`)
	if err != nil {
		return nil, fmt.Errorf("load note stock: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stock := make(map[vaultmodels.Denomination]int)
	for rows.Next() {
		var d, q int
		if err := rows.Scan(&d, &q); err != nil {
			return nil, fmt.Errorf("scan note stock: %w", err)
		}
		stock[vaultmodels.Denomination(d)] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load note stock: %w", err)
	}
	return stock, nil
}

func (g *Gateway) CreateAccount(ctx context.Context, account *accountmodels.Account) error {
	ex := txcontext.ExecutorFor(ctx, g.db)
	res, err := ex.ExecContext(ctx, `
		INSERT INTO accounts (account_number, account_holder, balance_cents, pin)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_number) DO NOTHING`,
		account.Number, account.Holder, account.Balance.Cents(), account.PIN)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %s: %w", account.Number, sentinel.ErrConflict)
	}
	return nil
}

func (g *Gateway) SaveAccount(ctx context.Context, account *accountmodels.Account) error {
	ex := txcontext.ExecutorFor(ctx, g.db)
	res, err := ex.ExecContext(ctx, `
		UPDATE accounts SET account_holder = ?, balance_cents = ?, pin = ?
		WHERE account_number = ?`,
		account.Holder, account.Balance.Cents(), account.PIN, account.Number)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %s: %w", account.Number, sentinel.ErrNotFound)
	}
	return nil
}

func (g *Gateway) SaveMachineState(ctx context.Context, state machinemodels.State) error {
	ex := txcontext.ExecutorFor(ctx, g.db)
	_, err := ex.ExecContext(ctx, `
		UPDATE machine_state SET cash_cents = ?, paper_sheets = ?, ink_units = ?, last_updated = ?
		WHERE id = 1`,
		state.Cash.Cents(), state.PaperSheets, state.InkUnits, formatTime(state.LastUpdated))
	if err != nil {
		return fmt.Errorf("save machine state: %w", err)
	}
	return nil
}

func (g *Gateway) SaveNoteStock(ctx context.Context, stock map[vaultmodels.Denomination]int) error {
	ex := txcontext.ExecutorFor(ctx, g.db)
	now := formatTime(time.Now())
	for d, q := range stock {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO bank_notes (denomination, quantity, last_updated)
			VALUES (?, ?, ?)
			ON CONFLICT (denomination) DO UPDATE SET
				quantity = excluded.quantity,
				last_updated = excluded.last_updated`,
			int(d), q, now)
		if err != nil {
			return fmt.Errorf("save note stock %s: %w", d, err)
		}
	}
	return nil
}

func (g *Gateway) AppendTransaction(ctx context.Context, record audit.TransactionRecord) error {
	ex := txcontext.ExecutorFor(ctx, g.db)
	breakdown := sql.NullString{String: record.NoteBreakdown, Valid: record.NoteBreakdown != ""}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO transactions
			(account_number, account_holder, transaction_type, amount_cents,
			 previous_balance_cents, new_balance_cents, note_breakdown, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.AccountNumber, record.AccountHolder, string(record.Type), record.Amount.Cents(),
		record.PreviousBalance.Cents(), record.NewBalance.Cents(), breakdown, formatTime(record.CreatedAt))
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (g *Gateway) AppendActivity(ctx context.Context, record audit.ActivityRecord) error {
	ex := txcontext.ExecutorFor(ctx, g.db)
	_, err := ex.ExecContext(ctx, `
		INSERT INTO technician_activities
			(activity_type, amount, description, previous_value, new_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(record.Type), record.Amount, record.Description,
		record.PreviousValue, record.NewValue, formatTime(record.CreatedAt))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (g *Gateway) ListTransactions(ctx context.Context, accountNumber string, limit int) ([]audit.TransactionRecord, error) {
	ex := txcontext.ExecutorFor(ctx, g.db)
	rows, err := ex.QueryContext(ctx, `
		SELECT id, account_number, account_holder, transaction_type, amount_cents,
		       previous_balance_cents, new_balance_cents, note_breakdown, created_at
		FROM transactions
		WHERE account_number = ?
		ORDER BY id DESC
		LIMIT ?`, accountNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []audit.TransactionRecord
	for rows.Next() {
		record, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return records, nil
}

func (g *Gateway) ListActivities(ctx context.Context, limit int) ([]audit.ActivityRecord, error) {
	ex := txcontext.ExecutorFor(ctx, g.db)
	rows, err := ex.QueryContext(ctx, `
		SELECT id, activity_type, amount, description, previous_value, new_value, created_at
		FROM technician_activities
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []audit.ActivityRecord
	for rows.Next() {
		var (
			record  audit.ActivityRecord
			created string
		)
		if err := rows.Scan(&record.ID, &record.Type, &record.Amount, &record.Description,
			&record.PreviousValue, &record.NewValue, &created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if record.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return records, nil
}

func (g *Gateway) FindTechnician(ctx context.Context, username string) (*authmodels.Technician, error) {
	ex := txcontext.ExecutorFor(ctx, g.db)
	var t authmodels.Technician
	err := ex.QueryRowContext(ctx, `
		SELECT username, password, full_name, role
		FROM technicians WHERE username = ?`, username).
		Scan(&t.Username, &t.Password, &t.FullName, &t.Role)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("technician %s: %w", username, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find technician: %w", err)
	}
	return &t, nil
}

// RunInTx runs fn inside one SQL transaction. A nested call joins the
// transaction already bound to ctx.
func (g *Gateway) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	t, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = t.Rollback() }()

	if err := fn(txcontext.WithTx(ctx, t)); err != nil {
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	return g.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (audit.TransactionRecord, error) {
	var (
		record    audit.TransactionRecord
		amount    int64
		previous  int64
		current   int64
		breakdown sql.NullString
		created   string
	)
	err := row.Scan(&record.ID, &record.AccountNumber, &record.AccountHolder, &record.Type,
		&amount, &previous, &current, &breakdown, &created)
	if err != nil {
		return audit.TransactionRecord{}, fmt.Errorf("scan transaction: %w", err)
	}
	record.Amount = money.FromCents(amount)
	record.PreviousBalance = money.FromCents(previous)
	record.NewBalance = money.FromCents(current)
	record.NoteBreakdown = breakdown.String
	if record.CreatedAt, err = parseTime(created); err != nil {
		return audit.TransactionRecord{}, fmt.Errorf("scan transaction: %w", err)
	}
	return record, nil
}

// Timestamps are stored as RFC 3339 text so the file stays readable with any
// sqlite shell.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
