package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/viscontia/expensefx/internal/db"
	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/logger"
)

// migration is one ordered schema file, identified by its numeric prefix
// (e.g. 001_initial_schema.sql).
type migration struct {
	version  int
	filename string
	content  string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "migrations", "directory containing ordered .sql files")
	flag.Parse()

	_ = godotenv.Load()

	zl, err := logger.New()
	if err != nil {
		return err
	}
	defer zl.Sync()
	log := zl.Named("migrate")

	database, err := db.Connect(db.NewConfig())
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info("database connection established")

	ctx := context.Background()
	if err := ensureVersionTable(ctx, database); err != nil {
		return err
	}

	current, err := currentVersion(ctx, database)
	if err != nil {
		return err
	}

	migrations, err := loadMigrations(*dir)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		log.Info("applying migration",
			zap.Int("version", m.version),
			zap.String("file", m.filename),
		)
		if err := apply(ctx, database, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.filename, err)
		}
		applied++
	}

	log.Info("migrations up to date",
		zap.Int("applied", applied),
		zap.Int("current_version", maxVersion(migrations, current)),
	)
	return nil
}

func ensureVersionTable(ctx context.Context, database *db.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			filename VARCHAR(255) NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	if _, err := database.ExecContext(ctx, query); err != nil {
		return apperrors.StoreUnavailable("create schema_migrations", err)
	}
	return nil
}

func currentVersion(ctx context.Context, database *db.DB) (int, error) {
	var version int
	err := database.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, apperrors.StoreUnavailable("read schema version", err)
	}
	return version, nil
}

func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrConfiguration, dir, err)
	}

	var migrations []migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		prefix, _, found := strings.Cut(name, "_")
		if !found {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", apperrors.ErrConfiguration, name, err)
		}
		migrations = append(migrations, migration{version: version, filename: name, content: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

// apply runs one migration and records it, atomically.
func apply(ctx context.Context, database *db.DB, m migration) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StoreUnavailable("begin migration", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.content); err != nil {
		return apperrors.StoreUnavailable("execute migration", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, filename) VALUES ($1, $2)`,
		m.version, m.filename); err != nil {
		return apperrors.StoreUnavailable("record migration", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.StoreUnavailable("commit migration", err)
	}
	return nil
}

func maxVersion(migrations []migration, current int) int {
	for _, m := range migrations {
		if m.version > current {
			current = m.version
		}
	}
	return current
}
