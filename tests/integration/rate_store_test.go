package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/store"
)

var testCurrencies = []string{"EUR", "USD", "GBP", "ZAR"}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestDailyRateUniquenessPerDay(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, truncateAll(ctx))
	rates := store.NewRateStore(suiteContainer.Database, testCurrencies)

	day := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	require.NoError(t, rates.PutDaily(ctx, "EUR", "USD", dec(t, "1.10"), day))
	require.NoError(t, rates.PutDaily(ctx, "EUR", "USD", dec(t, "1.12"), day.Add(4*time.Hour)))

	var count int
	err := suiteContainer.Database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM daily_rates WHERE from_currency = 'EUR' AND to_currency = 'USD'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "one row per (pair, day)")

	got, err := rates.FindAnyDaily(ctx, "EUR", "USD")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Rate.Equal(dec(t, "1.12")), "upsert keeps the latest sample")
}

func TestBatchPutDailyTimestampsBitwiseEqual(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, truncateAll(ctx))
	rates := store.NewRateStore(suiteContainer.Database, testCurrencies)

	ts := time.Date(2024, 6, 1, 14, 30, 0, 0, time.UTC)
	pairs := []models.RatePair{
		{FromCurrency: "EUR", ToCurrency: "USD", Rate: dec(t, "1.08")},
		{FromCurrency: "USD", ToCurrency: "EUR", Rate: dec(t, "0.93")},
		{FromCurrency: "EUR", ToCurrency: "ZAR", Rate: dec(t, "20.5")},
		{FromCurrency: "ZAR", ToCurrency: "EUR", Rate: dec(t, "0.0488")},
	}
	require.NoError(t, rates.BatchPutDaily(ctx, pairs, ts))

	rows, err := suiteContainer.Database.QueryContext(ctx, `SELECT sample_date FROM daily_rates`)
	require.NoError(t, err)
	defer rows.Close()

	var n int
	for rows.Next() {
		var sampleDate time.Time
		require.NoError(t, rows.Scan(&sampleDate))
		assert.True(t, sampleDate.Equal(ts), "row %d timestamp %v != shared %v", n, sampleDate, ts)
		n++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, len(pairs), n)

	latest, err := rates.LatestDailyUpdate(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(ts))
}

func TestFrozenRatesImmutableAndCascade(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, truncateAll(ctx))
	rates := store.NewRateStore(suiteContainer.Database, testCurrencies)
	expenses := store.NewExpenseStore(suiteContainer.Database)

	e := &models.Expense{
		Amount:          dec(t, "100"),
		Currency:        "ZAR",
		TransactionDate: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Description:     "lunch",
	}
	require.NoError(t, expenses.Create(ctx, e))

	require.NoError(t, rates.PutFrozen(ctx, e.ID, []models.RatePair{
		{FromCurrency: "ZAR", ToCurrency: "EUR", Rate: dec(t, "0.05")},
	}, time.Now().UTC()))
	require.NoError(t, rates.PutFrozen(ctx, e.ID, []models.RatePair{
		{FromCurrency: "ZAR", ToCurrency: "EUR", Rate: dec(t, "0.04")},
	}, time.Now().UTC()))

	frozen, err := rates.FindFrozen(ctx, e.ID, "ZAR", "EUR")
	require.NoError(t, err)
	require.NotNil(t, frozen)
	assert.True(t, frozen.Rate.Equal(dec(t, "0.05")), "second write must not overwrite")

	// Deleting the expense cascades its frozen rates.
	require.NoError(t, expenses.Delete(ctx, e.ID))
	count, err := rates.CountFrozen(ctx, e.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFrozenRateRejectsUnknownExpense(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, truncateAll(ctx))
	rates := store.NewRateStore(suiteContainer.Database, testCurrencies)

	err := rates.PutFrozen(ctx, 424242, []models.RatePair{
		{FromCurrency: "ZAR", ToCurrency: "EUR", Rate: dec(t, "0.05")},
	}, time.Now().UTC())
	assert.Error(t, err, "foreign key must reject orphan frozen rates")
}

func TestFindNearestDailyAcrossDays(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, truncateAll(ctx))
	rates := store.NewRateStore(suiteContainer.Database, testCurrencies)

	target := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, rates.PutDaily(ctx, "EUR", "USD", dec(t, "1.10"), target.AddDate(0, 0, -3)))
	require.NoError(t, rates.PutDaily(ctx, "EUR", "USD", dec(t, "1.25"), target.AddDate(0, 0, 10)))

	nearest, err := rates.FindNearestDaily(ctx, "EUR", "USD", target, 30)
	require.NoError(t, err)
	require.NotNil(t, nearest)
	assert.True(t, nearest.Rate.Equal(dec(t, "1.10")))
	assert.Equal(t, 3, nearest.DaysDifference)
}
