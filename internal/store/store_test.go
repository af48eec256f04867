package store

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/viscontia/expensefx/internal/db"
)

// testSchema mirrors the postgres schema with sqlite-friendly column types
// so the raw-SQL paths run unchanged in unit tests.
const testSchema = `
CREATE TABLE expenses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	amount DECIMAL(20,2) NOT NULL,
	currency VARCHAR(3) NOT NULL,
	transaction_date DATETIME NOT NULL,
	description TEXT,
	category VARCHAR(100),
	conversion_rate DECIMAL(20,8) NOT NULL DEFAULT 0,
	created_at DATETIME,
	updated_at DATETIME
);

CREATE TABLE daily_rates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	from_currency VARCHAR(3) NOT NULL,
	to_currency VARCHAR(3) NOT NULL,
	rate DECIMAL(20,8) NOT NULL,
	sample_date DATETIME NOT NULL,
	day DATE NOT NULL,
	UNIQUE (from_currency, to_currency, day)
);

CREATE TABLE frozen_rates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	expense_id INTEGER NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
	from_currency VARCHAR(3) NOT NULL,
	to_currency VARCHAR(3) NOT NULL,
	rate DECIMAL(20,8) NOT NULL,
	captured_at DATETIME NOT NULL,
	UNIQUE (expense_id, from_currency, to_currency)
);
`

var testCurrencies = []string{"EUR", "USD", "GBP", "ZAR"}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?_fk=1"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := gdb.Exec(testSchema).Error; err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	database, err := db.Wrap(gdb)
	if err != nil {
		t.Fatalf("failed to wrap connection: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	sqlDB, err := database.GetSQLDB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = database.Close() })
	return database
}
