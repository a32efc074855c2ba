// Package postgres provides the persistence gateway for terminals attached
// to a central bank database instead of a local file.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

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
	account_number VARCHAR(32) PRIMARY KEY,
	account_holder VARCHAR(255) NOT NULL,
	balance_cents BIGINT NOT NULL CHECK (balance_cents >= 0),
	pin VARCHAR(8) NOT NULL
);

CREATE TABLE IF NOT EXISTS machine_state (
	id INT PRIMARY KEY CHECK (id = 1),
	cash_cents BIGINT NOT NULL CHECK (cash_cents >= 0),
	paper_sheets INT NOT NULL CHECK (paper_sheets >= 0),
	ink_units INT NOT NULL CHECK (ink_units >= 0),
	last_updated TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bank_notes (
	denomination INT PRIMARY KEY,
	quantity INT NOT NULL CHECK (quantity >= 0),
	last_updated TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	account_number VARCHAR(32) NOT NULL,
	account_holder VARCHAR(255) NOT NULL,
	transaction_type VARCHAR(32) NOT NULL,
	amount_cents BIGINT NOT NULL,
	previous_balance_cents BIGINT NOT NULL,
	new_balance_cents BIGINT NOT NULL,
	note_breakdown TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_number, id);

CREATE TABLE IF NOT EXISTS technician_activities (
	id BIGSERIAL PRIMARY KEY,
	activity_type VARCHAR(32) NOT NULL,
	amount BIGINT NOT NULL,
	description TEXT NOT NULL,
	previous_value BIGINT NOT NULL,
	new_value BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS technicians (
	username VARCHAR(64) PRIMARY KEY,
	password VARCHAR(64) NOT NULL,
	full_name VARCHAR(255) NOT NULL,
	role VARCHAR(32) NOT NULL
);
`

// Gateway implements storage.Gateway on PostgreSQL.
type Gateway struct {
	db *sql.DB
}

// New wraps an existing database handle. Call Init before first use.
func New(db *sql.DB) *Gateway {
	return &Gateway{db: db}
}

// Open connects, applies the schema, and seeds empty tables.
func Open(dsn string, seed storage.SeedData) (*Gateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	g := New(db)
	if err := g.Init(context.Background(), seed); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// Init applies the schema and seeds any empty tables. It is idempotent: an
// initialized database passes through untouched.
func (g *Gateway) Init(ctx context.Context, seed storage.SeedData) error {
	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
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
				VALUES (1, $1, $2, $3, $4)`,
				seed.Machine.Cash.Cents(), seed.Machine.PaperSheets, seed.Machine.InkUnits,
				seed.Machine.LastUpdated)
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
					VALUES ($1, $2, $3, $4)`,
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
		state machinemodels.State
		cash  int64
	)
	err := ex.QueryRowContext(ctx, `
		SELECT cash_cents, paper_sheets, ink_units, last_updated
		FROM machine_state WHERE id = 1`).
		Scan(&cash, &state.PaperSheets, &state.InkUnits, &state.LastUpdated)
	if err == sql.ErrNoRows {
		return machinemodels.State{}, fmt.Errorf("machine state: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return machinemodels.State{}, fmt.Errorf("load machine state: %w", err)
	}
	state.Cash = money.FromCents(cash)
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
		VALUES ($1, $2, $3, $4)
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
		UPDATE accounts SET account_holder = $1, balance_cents = $2, pin = $3
		WHERE account_number = $4`,
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
		UPDATE machine_state SET cash_cents = $1, paper_sheets = $2, ink_units = $3, last_updated = $4
		WHERE id = 1`,
		state.Cash.Cents(), state.PaperSheets, state.InkUnits, state.LastUpdated)
	if err != nil {
		return fmt.Errorf("save machine state: %w", err)
	}
	return nil
}

func (g *Gateway) SaveNoteStock(ctx context.Context, stock map[vaultmodels.Denomination]int) error {
	ex := txcontext.ExecutorFor(ctx, g.db)
	now := time.Now()
	for d, q := range stock {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO bank_notes (denomination, quantity, last_updated)
			VALUES ($1, $2, $3)
			ON CONFLICT (denomination) DO UPDATE SET
				quantity = EXCLUDED.quantity,
				last_updated = EXCLUDED.last_updated`,
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.AccountNumber, record.AccountHolder, string(record.Type), record.Amount.Cents(),
		record.PreviousBalance.Cents(), record.NewBalance.Cents(), breakdown, record.CreatedAt)
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
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(record.Type), record.Amount, record.Description,
		record.PreviousValue, record.NewValue, record.CreatedAt)
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
		WHERE account_number = $1
		ORDER BY id DESC
		LIMIT $2`, accountNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []audit.TransactionRecord
	for rows.Next() {
		var (
			record    audit.TransactionRecord
			amount    int64
			previous  int64
			current   int64
			breakdown sql.NullString
		)
		err := rows.Scan(&record.ID, &record.AccountNumber, &record.AccountHolder, &record.Type,
			&amount, &previous, &current, &breakdown, &record.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		record.Amount = money.FromCents(amount)
		record.PreviousBalance = money.FromCents(previous)
		record.NewBalance = money.FromCents(current)
		record.NoteBreakdown = breakdown.String
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
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []audit.ActivityRecord
	for rows.Next() {
		var record audit.ActivityRecord
		if err := rows.Scan(&record.ID, &record.Type, &record.Amount, &record.Description,
			&record.PreviousValue, &record.NewValue, &record.CreatedAt); err != nil {
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
		FROM technicians WHERE username = $1`, username).
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
