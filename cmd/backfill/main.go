package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/viscontia/expensefx/internal/cache"
	"github.com/viscontia/expensefx/internal/config"
	"github.com/viscontia/expensefx/internal/db"
	"github.com/viscontia/expensefx/internal/logger"
	"github.com/viscontia/expensefx/internal/migrator"
	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/services"
	"github.com/viscontia/expensefx/internal/store"
)

const usage = `usage: backfill <command> [flags]

commands:
  migrate    run or resume the frozen-rate backfill
  rollback   delete frozen rates written by prior runs and remove state
  status     print the persisted state of the most recent run

flags:
  --batch-size=N    expenses per batch (default 50)
  --max-retries=N   per-expense retry cap (default 3)
  --no-rollback     refuse rollback for this configuration
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "backfill:", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}
	command := os.Args[1]

	flags := flag.NewFlagSet("backfill", flag.ExitOnError)
	batchSize := flags.Int("batch-size", 0, "expenses per batch")
	maxRetries := flags.Int("max-retries", 0, "per-expense retry cap")
	noRollback := flags.Bool("no-rollback", false, "disable rollback support")
	if err := flags.Parse(os.Args[2:]); err != nil {
		return err
	}

	_ = godotenv.Load()

	zl, err := logger.New()
	if err != nil {
		return err
	}
	defer zl.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *batchSize > 0 {
		cfg.MigratorBatchSize = *batchSize
	}
	if *maxRetries > 0 {
		cfg.MigratorMaxRetries = *maxRetries
	}

	database, err := db.Connect(db.NewConfig())
	if err != nil {
		return err
	}
	defer database.Close()

	rateCache := cache.New(cfg.CacheCapacity, zl, nil)
	rateStore := store.NewRateStore(database, cfg.Currencies())
	expenseStore := store.NewExpenseStore(database)
	provider := services.NewHTTPRateProvider(cfg, rateCache, zl, nil)

	m := migrator.New(expenseStore, rateStore, provider, migrator.Options{
		BatchSize:      cfg.MigratorBatchSize,
		MaxRetries:     cfg.MigratorMaxRetries,
		RetryDelay:     cfg.MigratorRetryDelay,
		StateFile:      cfg.MigratorStateFile,
		LogFile:        cfg.MigratorLogFile,
		EnableRollback: !*noRollback,
		BaseCurrency:   cfg.BaseCurrency(),
		Currencies:     cfg.Currencies(),
		WindowDays:     cfg.MigrationWindowDays,
	}, zl, nil)

	switch command {
	case "migrate":
		// SIGINT/SIGTERM pause the run between expenses; the next invocation
		// resumes from the state file.
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		state, err := m.Run(ctx)
		if err != nil {
			return err
		}
		printState(state)
		if state.Status == models.MigrationStatusFailed {
			return fmt.Errorf("migration failed")
		}
		return nil

	case "rollback":
		return m.Rollback(context.Background())

	case "status":
		state := m.Status()
		if state == nil {
			fmt.Println("no migration state recorded")
			return nil
		}
		printState(state)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func printState(state *models.MigrationState) {
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		fmt.Printf("%+v\n", state)
		return
	}
	fmt.Println(string(out))
}
