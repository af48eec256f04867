// Package integration exercises the rate store and the capture/convert flow
// against a real PostgreSQL instance. These tests require Docker; they are
// skipped in -short mode.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/viscontia/expensefx/internal/db"
)

// suiteContainer is shared by every test in the package; TestMain owns its
// lifecycle.
var suiteContainer *testDB

type testDB struct {
	Container testcontainers.Container
	Database  *db.DB
}

func setupWithContext(ctx context.Context) (*testDB, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("expensefx_test"),
		postgres.WithUsername("expensefx_user"),
		postgres.WithPassword("expensefx_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("container port: %w", err)
	}

	database, err := db.Connect(&db.Config{
		Host:     host,
		Port:     port.Port(),
		User:     "expensefx_user",
		Password: "expensefx_password",
		Name:     "expensefx_test",
		SSLMode:  "disable",
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &testDB{Container: pgContainer, Database: database}, nil
}

// runMigrations applies the SQL files from the migrations directory in
// numeric order.
func runMigrations(database *db.DB) error {
	migrationsPath, err := filepath.Abs("../../migrations")
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		return err
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(migrationsPath, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := database.ExecContext(context.Background(), string(content)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// truncateAll resets table state between tests.
func truncateAll(ctx context.Context) error {
	_, err := suiteContainer.Database.ExecContext(ctx,
		`TRUNCATE frozen_rates, daily_rates, expenses RESTART IDENTITY CASCADE`)
	return err
}
