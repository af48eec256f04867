package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/viscontia/expensefx/internal/models"
)

// RateStore provides durable, indexed access to daily and frozen rates.
type RateStore interface {
	// PutDaily upserts one rate for (from, to, UTC day of sampleDate).
	PutDaily(ctx context.Context, from, to string, rate decimal.Decimal, sampleDate time.Time) error
	// BatchPutDaily inserts all pairs with a single shared timestamp so every
	// row carries an identical sample_date.
	BatchPutDaily(ctx context.Context, pairs []models.RatePair, ts time.Time) error
	// ClearAllDaily truncates the daily table. Used only by force-refresh.
	ClearAllDaily(ctx context.Context) error
	// ListCurrencies returns the distinct currencies appearing in daily
	// rates, sorted.
	ListCurrencies(ctx context.Context) ([]string, error)
	// LatestDailyUpdate returns max(sample_date), or nil when the table is
	// empty.
	LatestDailyUpdate(ctx context.Context) (*time.Time, error)
	// FindDaily returns the most recent rate for (from, to) sampled within
	// recentWithin of now, or nil.
	FindDaily(ctx context.Context, from, to string, recentWithin time.Duration) (*models.DailyRate, error)
	// FindAnyDaily returns the most recent rate for (from, to) regardless of
	// age, or nil.
	FindAnyDaily(ctx context.Context, from, to string) (*models.DailyRate, error)
	// FindNearestDaily returns the rate for (from, to) sampled nearest to
	// targetDay within ±windowDays, or nil.
	FindNearestDaily(ctx context.Context, from, to string, targetDay time.Time, windowDays int) (*models.NearestRate, error)
	// ExistsRatesForDay reports whether any daily rate exists for the UTC day
	// of ts.
	ExistsRatesForDay(ctx context.Context, ts time.Time) (bool, error)

	// PutFrozen batch-inserts frozen rates for one expense, ignoring
	// conflicts: an existing (expenseID, from, to) row is never overwritten.
	PutFrozen(ctx context.Context, expenseID int64, pairs []models.RatePair, capturedAt time.Time) error
	// FindFrozen returns the stored frozen rate, or nil.
	FindFrozen(ctx context.Context, expenseID int64, from, to string) (*models.FrozenRate, error)
	// CountFrozen counts frozen rates for one expense.
	CountFrozen(ctx context.Context, expenseID int64) (int, error)
	// DeleteFrozenByExpenseIDs removes frozen rates for the given expenses,
	// returning the number of rows deleted.
	DeleteFrozenByExpenseIDs(ctx context.Context, expenseIDs []int64) (int64, error)
	// DistinctFrozenExpenseIDs lists every expense id that has at least one
	// frozen rate, ascending.
	DistinctFrozenExpenseIDs(ctx context.Context) ([]int64, error)
}

// ExpenseStore provides expense persistence plus the read paths the backfill
// migrator iterates over.
type ExpenseStore interface {
	Create(ctx context.Context, e *models.Expense) error
	GetByID(ctx context.Context, id int64) (*models.Expense, error)
	List(ctx context.Context, filter *models.ExpenseFilter) ([]*models.Expense, error)
	Update(ctx context.Context, e *models.Expense) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
	// ListBatchAfter returns up to limit expenses with id > afterID, ordered
	// by id ascending.
	ListBatchAfter(ctx context.Context, afterID int64, limit int) ([]*models.Expense, error)
}
