package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/viscontia/expensefx/internal/db"
	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/models"
)

type rateStore struct {
	db         *db.DB
	currencies map[string]bool
}

// NewRateStore creates a rate store restricted to the configured currency
// set.
func NewRateStore(database *db.DB, currencies []string) RateStore {
	set := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		set[strings.ToUpper(c)] = true
	}
	return &rateStore{db: database, currencies: set}
}

func (s *rateStore) validatePair(from, to string, rate decimal.Decimal) error {
	if !s.currencies[from] {
		return &apperrors.ErrValidation{Field: "from_currency", Message: "unsupported currency " + from}
	}
	if !s.currencies[to] {
		return &apperrors.ErrValidation{Field: "to_currency", Message: "unsupported currency " + to}
	}
	if from == to {
		return &apperrors.ErrValidation{Field: "to_currency", Message: "identity pairs are not stored"}
	}
	if rate.IsZero() || rate.IsNegative() {
		return &apperrors.ErrValidation{Field: "rate", Message: "rate must be positive"}
	}
	return nil
}

func (s *rateStore) PutDaily(ctx context.Context, from, to string, rate decimal.Decimal, sampleDate time.Time) error {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if err := s.validatePair(from, to, rate); err != nil {
		return err
	}

	query := `
		INSERT INTO daily_rates (from_currency, to_currency, rate, sample_date, day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (from_currency, to_currency, day)
		DO UPDATE SET rate = excluded.rate, sample_date = excluded.sample_date`

	_, err := s.db.ExecContext(ctx, query, from, to, rate, sampleDate.UTC(), models.DateOnly(sampleDate))
	if err != nil {
		return apperrors.StoreUnavailable("put daily rate", err)
	}
	return nil
}

func (s *rateStore) BatchPutDaily(ctx context.Context, pairs []models.RatePair, ts time.Time) error {
	if len(pairs) == 0 {
		return nil
	}
	for _, p := range pairs {
		if err := s.validatePair(strings.ToUpper(p.FromCurrency), strings.ToUpper(p.ToCurrency), p.Rate); err != nil {
			return err
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StoreUnavailable("begin batch put", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	query := `
		INSERT INTO daily_rates (from_currency, to_currency, rate, sample_date, day)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (from_currency, to_currency, day)
		DO UPDATE SET rate = excluded.rate, sample_date = excluded.sample_date`

	shared := ts.UTC()
	day := models.DateOnly(ts)
	for _, p := range pairs {
		if _, err = sqlTx.ExecContext(ctx, query,
			strings.ToUpper(p.FromCurrency), strings.ToUpper(p.ToCurrency), p.Rate, shared, day); err != nil {
			return apperrors.StoreUnavailable("batch put daily rate", err)
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return apperrors.StoreUnavailable("commit batch put", err)
	}
	return nil
}

func (s *rateStore) ClearAllDaily(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM daily_rates`); err != nil {
		return apperrors.StoreUnavailable("clear daily rates", err)
	}
	return nil
}

func (s *rateStore) ListCurrencies(ctx context.Context) ([]string, error) {
	query := `
		SELECT from_currency AS code FROM daily_rates
		UNION
		SELECT to_currency FROM daily_rates`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.StoreUnavailable("list currencies", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, apperrors.StoreUnavailable("scan currency", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreUnavailable("list currencies", err)
	}
	sort.Strings(codes)
	return codes, nil
}

func (s *rateStore) LatestDailyUpdate(ctx context.Context) (*time.Time, error) {
	query := `SELECT sample_date FROM daily_rates ORDER BY sample_date DESC LIMIT 1`

	var ts time.Time
	err := s.db.QueryRowContext(ctx, query).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable("latest daily update", err)
	}
	return &ts, nil
}

func (s *rateStore) FindDaily(ctx context.Context, from, to string, recentWithin time.Duration) (*models.DailyRate, error) {
	query := `
		SELECT id, from_currency, to_currency, rate, sample_date, day
		FROM daily_rates
		WHERE from_currency = $1 AND to_currency = $2 AND sample_date >= $3
		ORDER BY sample_date DESC
		LIMIT 1`

	cutoff := time.Now().UTC().Add(-recentWithin)
	return s.scanDaily(s.db.QueryRowContext(ctx, query, strings.ToUpper(from), strings.ToUpper(to), cutoff))
}

func (s *rateStore) FindAnyDaily(ctx context.Context, from, to string) (*models.DailyRate, error) {
	query := `
		SELECT id, from_currency, to_currency, rate, sample_date, day
		FROM daily_rates
		WHERE from_currency = $1 AND to_currency = $2
		ORDER BY sample_date DESC
		LIMIT 1`

	return s.scanDaily(s.db.QueryRowContext(ctx, query, strings.ToUpper(from), strings.ToUpper(to)))
}

func (s *rateStore) scanDaily(row *sql.Row) (*models.DailyRate, error) {
	r := &models.DailyRate{}
	err := row.Scan(&r.ID, &r.FromCurrency, &r.ToCurrency, &r.Rate, &r.SampleDate, &r.Day)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable("scan daily rate", err)
	}
	return r, nil
}

// FindNearestDaily loads the window's candidates and picks the nearest in Go
// rather than in SQL; the window is at most a few dozen rows per pair.
func (s *rateStore) FindNearestDaily(ctx context.Context, from, to string, targetDay time.Time, windowDays int) (*models.NearestRate, error) {
	target := models.DateOnly(targetDay)
	lo := target.AddDate(0, 0, -windowDays)
	hi := target.AddDate(0, 0, windowDays)

	query := `
		SELECT rate, sample_date, day
		FROM daily_rates
		WHERE from_currency = $1 AND to_currency = $2 AND day >= $3 AND day <= $4
		ORDER BY day ASC`

	rows, err := s.db.QueryContext(ctx, query, strings.ToUpper(from), strings.ToUpper(to), lo, hi)
	if err != nil {
		return nil, apperrors.StoreUnavailable("find nearest daily rate", err)
	}
	defer rows.Close()

	var best *models.NearestRate
	for rows.Next() {
		var rate decimal.Decimal
		var sampleDate, day time.Time
		if err := rows.Scan(&rate, &sampleDate, &day); err != nil {
			return nil, apperrors.StoreUnavailable("scan nearest daily rate", err)
		}
		diff := int(models.DateOnly(day).Sub(target).Hours() / 24)
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < best.DaysDifference {
			best = &models.NearestRate{Rate: rate, SampleDate: sampleDate, DaysDifference: diff}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreUnavailable("find nearest daily rate", err)
	}
	return best, nil
}

func (s *rateStore) ExistsRatesForDay(ctx context.Context, ts time.Time) (bool, error) {
	query := `SELECT COUNT(*) FROM daily_rates WHERE day = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, models.DateOnly(ts)).Scan(&count); err != nil {
		return false, apperrors.StoreUnavailable("check rates for day", err)
	}
	return count > 0, nil
}

func (s *rateStore) PutFrozen(ctx context.Context, expenseID int64, pairs []models.RatePair, capturedAt time.Time) error {
	if expenseID <= 0 {
		return &apperrors.ErrValidation{Field: "expense_id", Message: "must be positive"}
	}
	if len(pairs) == 0 {
		return nil
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.StoreUnavailable("begin put frozen", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	// Conflict-ignore: a frozen rate, once written, is never overwritten.
	query := `
		INSERT INTO frozen_rates (expense_id, from_currency, to_currency, rate, captured_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (expense_id, from_currency, to_currency) DO NOTHING`

	for _, p := range pairs {
		from, to := strings.ToUpper(p.FromCurrency), strings.ToUpper(p.ToCurrency)
		if from == to || p.Rate.IsZero() || p.Rate.IsNegative() {
			continue
		}
		if _, err = sqlTx.ExecContext(ctx, query, expenseID, from, to, p.Rate, capturedAt.UTC()); err != nil {
			return apperrors.StoreUnavailable("put frozen rate", err)
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return apperrors.StoreUnavailable("commit put frozen", err)
	}
	return nil
}

func (s *rateStore) FindFrozen(ctx context.Context, expenseID int64, from, to string) (*models.FrozenRate, error) {
	query := `
		SELECT id, expense_id, from_currency, to_currency, rate, captured_at
		FROM frozen_rates
		WHERE expense_id = $1 AND from_currency = $2 AND to_currency = $3
		LIMIT 1`

	r := &models.FrozenRate{}
	err := s.db.QueryRowContext(ctx, query, expenseID, strings.ToUpper(from), strings.ToUpper(to)).Scan(
		&r.ID, &r.ExpenseID, &r.FromCurrency, &r.ToCurrency, &r.Rate, &r.CapturedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable("find frozen rate", err)
	}
	return r, nil
}

func (s *rateStore) CountFrozen(ctx context.Context, expenseID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frozen_rates WHERE expense_id = $1`, expenseID).Scan(&count)
	if err != nil {
		return 0, apperrors.StoreUnavailable("count frozen rates", err)
	}
	return count, nil
}

func (s *rateStore) DeleteFrozenByExpenseIDs(ctx context.Context, expenseIDs []int64) (int64, error) {
	if len(expenseIDs) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(expenseIDs))
	args := make([]any, len(expenseIDs))
	for i, id := range expenseIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM frozen_rates WHERE expense_id IN (%s)`, strings.Join(placeholders, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.StoreUnavailable("delete frozen rates", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.StoreUnavailable("delete frozen rates", err)
	}
	return n, nil
}

func (s *rateStore) DistinctFrozenExpenseIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT expense_id FROM frozen_rates ORDER BY expense_id ASC`)
	if err != nil {
		return nil, apperrors.StoreUnavailable("list frozen expense ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.StoreUnavailable("scan frozen expense id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreUnavailable("list frozen expense ids", err)
	}
	return ids, nil
}

var _ RateStore = (*rateStore)(nil)
