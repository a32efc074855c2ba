// Command cashpoint boots the cash terminal: configuration, persistence,
// the domain services, and the interactive menu loop on stdin and stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	accountservice "cashpoint/internal/account/service"
	"cashpoint/internal/audit"
	authservice "cashpoint/internal/auth/service"
	machineservice "cashpoint/internal/machine/service"
	"cashpoint/internal/platform/config"
	"cashpoint/internal/platform/logger"
	"cashpoint/internal/platform/metrics"
	"cashpoint/internal/storage"
	"cashpoint/internal/storage/memory"
	"cashpoint/internal/storage/postgres"
	"cashpoint/internal/storage/sqlite"
	"cashpoint/internal/transport/term"
	vaultmodels "cashpoint/internal/vault/models"
	vaultservice "cashpoint/internal/vault/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cashpoint:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	meters := metrics.New()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer store.Close()

	trail := audit.NewRecorder(store)

	// The three state loads are independent; boot them together.
	var (
		accounts *accountservice.Service
		machine  *machineservice.Service
		ledger   *vaultmodels.NoteLedger
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		accounts, err = accountservice.New(gctx, store, trail,
			accountservice.WithLogger(log), accountservice.WithMetrics(meters))
		return err
	})
	g.Go(func() error {
		var err error
		machine, err = machineservice.New(gctx, store,
			machineservice.WithLogger(log), machineservice.WithMetrics(meters))
		return err
	})
	g.Go(func() error {
		stock, err := store.LoadNoteStock(gctx)
		if err != nil {
			return fmt.Errorf("load note stock: %w", err)
		}
		ledger, err = vaultmodels.NewNoteLedger(stock)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load terminal state: %w", err)
	}

	vault := vaultservice.NewReconciler(ledger, machine, accounts, store,
		vaultservice.WithLogger(log), vaultservice.WithMetrics(meters))
	auth := authservice.New(accounts, store,
		authservice.WithLogger(log), authservice.WithMetrics(meters))

	log.InfoContext(ctx, "terminal ready",
		"store", cfg.StoreDriver,
		"accounts", accounts.Count(),
		"cash", vault.CashTotal().String())

	terminal := term.New(in, out, auth, accounts, vault, machine, trail,
		term.WithLogger(log))
	if err := terminal.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(cfg config.Terminal) (storage.Gateway, error) {
	seed := storage.DefaultSeed()
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return memory.New(seed), nil
	case config.StorePostgres:
		return postgres.Open(cfg.PostgresDSN, seed)
	default:
		return sqlite.Open(cfg.SQLitePath, seed)
	}
}
