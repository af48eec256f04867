package migrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/services"
	"github.com/viscontia/expensefx/internal/store"
	"github.com/viscontia/expensefx/internal/telemetry"
)

// rollbackPageSize bounds each frozen-rate delete during rollback.
const rollbackPageSize = 100

// Options configures one backfill run.
type Options struct {
	BatchSize              int
	MaxRetries             int
	RetryDelay             time.Duration
	ProgressReportInterval int
	StateFile              string
	LogFile                string
	EnableRollback         bool
	BaseCurrency           string
	Currencies             []string
	WindowDays             int
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.ProgressReportInterval <= 0 {
		o.ProgressReportInterval = 25
	}
	if o.StateFile == "" {
		o.StateFile = "backfill_state.json"
	}
	if o.LogFile == "" {
		o.LogFile = "backfill.log"
	}
	if o.WindowDays <= 0 {
		o.WindowDays = 30
	}
}

// Migrator backfills frozen rates for expenses that predate rate capture.
// Single-writer: running two migrators against one database is out of
// contract.
type Migrator struct {
	expenses store.ExpenseStore
	rates    store.RateStore
	provider services.RateProvider
	opts     Options
	log      *zap.Logger
	metrics  *telemetry.Metrics
}

func New(expenses store.ExpenseStore, rates store.RateStore, provider services.RateProvider, opts Options, log *zap.Logger, metrics *telemetry.Metrics) *Migrator {
	opts.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{
		expenses: expenses,
		rates:    rates,
		provider: provider,
		opts:     opts,
		log:      log.Named("backfill"),
		metrics:  metrics,
	}
}

// Run executes or resumes a backfill. Cancellation between expenses parks
// the run as paused; infrastructure failure marks it failed. Both persist
// state before returning.
func (m *Migrator) Run(ctx context.Context) (*models.MigrationState, error) {
	rlog, err := openRunLog(m.opts.LogFile)
	if err != nil {
		return nil, err
	}
	defer rlog.Close()

	state := loadState(m.opts.StateFile)
	if state != nil && state.Status == models.MigrationStatusCompleted {
		rlog.Printf("previous run %s already completed, nothing to do", state.RunID)
		return state, nil
	}
	if state != nil && state.Status == models.MigrationStatusPaused {
		rlog.Printf("resuming run %s from expense id %d", state.RunID, state.LastProcessedExpenseID)
		if err := state.TransitionTo(models.MigrationStatusRunning); err != nil {
			return nil, err
		}
		// A run parked before its first batch never learned the total.
		if state.TotalExpenses == 0 && ctx.Err() == nil {
			if total, err := m.expenses.Count(ctx); err == nil {
				state.TotalExpenses = total
			}
		}
	}
	if state == nil || state.Status == models.MigrationStatusFailed {
		var total int
		if ctx.Err() == nil {
			total, err = m.expenses.Count(ctx)
			if err != nil {
				return nil, fmt.Errorf("%w: counting expenses: %v", apperrors.ErrMigrationFailure, err)
			}
		}
		state = &models.MigrationState{
			RunID:         uuid.NewString(),
			Status:        models.MigrationStatusRunning,
			TotalExpenses: total,
			StartedAt:     time.Now().UTC(),
			BatchSize:     m.opts.BatchSize,
			MaxRetries:    m.opts.MaxRetries,
		}
		rlog.Printf("starting run %s over %d expenses (batch=%d retries=%d)",
			state.RunID, total, m.opts.BatchSize, m.opts.MaxRetries)
	}
	if err := saveState(m.opts.StateFile, state); err != nil {
		return nil, err
	}

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return m.park(state, rlog, start)
		}

		batch, err := m.expenses.ListBatchAfter(ctx, state.LastProcessedExpenseID, m.opts.BatchSize)
		if err != nil {
			return m.fail(state, rlog, start, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, expense := range batch {
			if err := ctx.Err(); err != nil {
				return m.park(state, rlog, start)
			}
			if !m.processExpense(ctx, expense, state, rlog) {
				// Cancelled mid-expense: park without advancing the
				// watermark so the next run revisits it.
				return m.park(state, rlog, start)
			}
			state.ProcessedCount++
			state.LastProcessedExpenseID = expense.ID
			if state.ProcessedCount%m.opts.ProgressReportInterval == 0 {
				m.reportProgress(state, rlog, start)
			}
		}

		state.DurationMs = time.Since(start).Milliseconds()
		if err := saveState(m.opts.StateFile, state); err != nil {
			return m.fail(state, rlog, start, err)
		}
	}

	if err := state.TransitionTo(models.MigrationStatusCompleted); err != nil {
		return nil, err
	}
	state.DurationMs = time.Since(start).Milliseconds()
	if err := saveState(m.opts.StateFile, state); err != nil {
		return nil, err
	}
	rlog.Printf("run %s completed: processed=%d migrated=%d skipped=%d errors=%d in %dms",
		state.RunID, state.ProcessedCount, state.MigratedCount, state.SkippedCount,
		len(state.Errors), state.DurationMs)
	m.log.Info("backfill completed",
		zap.String("run_id", state.RunID),
		zap.Int("processed", state.ProcessedCount),
		zap.Int("migrated", state.MigratedCount),
		zap.Int("skipped", state.SkippedCount),
		zap.Int("errors", len(state.Errors)),
	)
	return state, nil
}

// processExpense handles one expense; it reports false only when cancelled
// before finishing, so the caller can park without advancing.
func (m *Migrator) processExpense(ctx context.Context, expense *models.Expense, state *models.MigrationState, rlog *runLog) bool {
	count, err := m.rates.CountFrozen(ctx, expense.ID)
	if err == nil && count > 0 {
		state.SkippedCount++
		m.metrics.MigratorExpense(false)
		return true
	}

	pairs := m.deriveRates(ctx, expense, rlog)
	if len(pairs) == 0 {
		m.recordError(state, rlog, expense.ID, "no rates derivable")
		m.metrics.MigratorExpense(true)
		return true
	}

	var putErr error
	for attempt := 1; attempt <= m.opts.MaxRetries; attempt++ {
		putErr = m.rates.PutFrozen(ctx, expense.ID, pairs, time.Now().UTC())
		if putErr == nil {
			break
		}
		rlog.Printf("expense %d attempt %d/%d failed: %v", expense.ID, attempt, m.opts.MaxRetries, putErr)
		if attempt < m.opts.MaxRetries {
			select {
			case <-time.After(m.opts.RetryDelay):
			case <-ctx.Done():
				return false
			}
		}
	}
	if putErr != nil {
		m.recordError(state, rlog, expense.ID, putErr.Error())
		m.metrics.MigratorExpense(true)
		return true
	}

	state.MigratedCount++
	m.metrics.MigratorExpense(false)
	return true
}

// deriveRates assembles the frozen set for one pre-existing expense with a
// three-tier preference: the legacy conversion_rate column, then the nearest
// stored daily sample, then the provider's current rate.
func (m *Migrator) deriveRates(ctx context.Context, expense *models.Expense, rlog *runLog) []models.RatePair {
	base := m.opts.BaseCurrency
	var pairs []models.RatePair
	have := make(map[string]bool)

	add := func(p models.RatePair) {
		key := p.FromCurrency + "_" + p.ToCurrency
		if p.FromCurrency == p.ToCurrency || p.Rate.IsZero() || p.Rate.IsNegative() || have[key] {
			return
		}
		have[key] = true
		pairs = append(pairs, p)
	}

	// Tier 1: the legacy per-expense rate against the base currency.
	if expense.Currency != base && expense.ConversionRate.IsPositive() {
		legacy := models.RatePair{FromCurrency: expense.Currency, ToCurrency: base, Rate: expense.ConversionRate}
		add(legacy)
		add(legacy.Inverse())
	}

	// Tier 2: nearest stored daily sample around the expense date.
	for _, from := range m.opts.Currencies {
		for _, to := range m.opts.Currencies {
			if from == to || have[from+"_"+to] {
				continue
			}
			nearest, err := m.rates.FindNearestDaily(ctx, from, to, expense.TransactionDate, m.opts.WindowDays)
			if err != nil {
				rlog.Printf("expense %d nearest lookup %s/%s failed: %v", expense.ID, from, to, err)
				continue
			}
			if nearest != nil {
				add(models.RatePair{FromCurrency: from, ToCurrency: to, Rate: nearest.Rate})
			}
		}
	}

	// Tier 3: current provider rate for anything still missing.
	for _, from := range m.opts.Currencies {
		for _, to := range m.opts.Currencies {
			if from == to || have[from+"_"+to] {
				continue
			}
			r, err := m.provider.CurrentRate(ctx, from, to)
			if err != nil {
				rlog.Printf("expense %d provider lookup %s/%s failed: %v", expense.ID, from, to, err)
				continue
			}
			add(models.RatePair{FromCurrency: from, ToCurrency: to, Rate: r})
		}
	}

	return pairs
}

func (m *Migrator) recordError(state *models.MigrationState, rlog *runLog, expenseID int64, msg string) {
	state.Errors = append(state.Errors, models.MigrationError{
		ExpenseID: expenseID,
		Message:   msg,
		At:        time.Now().UTC(),
	})
	rlog.Printf("expense %d not migrated: %s", expenseID, msg)
}

func (m *Migrator) reportProgress(state *models.MigrationState, rlog *runLog, start time.Time) {
	elapsed := time.Since(start)
	remaining := state.TotalExpenses - state.ProcessedCount
	var eta time.Duration
	if state.ProcessedCount > 0 && remaining > 0 {
		perExpense := elapsed / time.Duration(state.ProcessedCount)
		eta = perExpense * time.Duration(remaining)
	}
	rlog.Printf("progress: %d/%d processed (migrated=%d skipped=%d errors=%d) eta=%s",
		state.ProcessedCount, state.TotalExpenses, state.MigratedCount,
		state.SkippedCount, len(state.Errors), eta.Round(time.Second))
	m.log.Info("backfill progress",
		zap.Int("processed", state.ProcessedCount),
		zap.Int("total", state.TotalExpenses),
		zap.Duration("eta", eta),
	)
}

func (m *Migrator) park(state *models.MigrationState, rlog *runLog, start time.Time) (*models.MigrationState, error) {
	if err := state.TransitionTo(models.MigrationStatusPaused); err != nil {
		return nil, err
	}
	state.DurationMs = time.Since(start).Milliseconds()
	if err := saveState(m.opts.StateFile, state); err != nil {
		return nil, err
	}
	rlog.Printf("run %s paused at expense id %d", state.RunID, state.LastProcessedExpenseID)
	return state, nil
}

func (m *Migrator) fail(state *models.MigrationState, rlog *runLog, start time.Time, cause error) (*models.MigrationState, error) {
	_ = state.TransitionTo(models.MigrationStatusFailed)
	state.DurationMs = time.Since(start).Milliseconds()
	if err := saveState(m.opts.StateFile, state); err != nil {
		rlog.Printf("run %s failed AND state could not be saved: %v", state.RunID, err)
	}
	rlog.Printf("run %s failed: %v", state.RunID, cause)
	return state, fmt.Errorf("%w: %v", apperrors.ErrMigrationFailure, cause)
}

// Rollback deletes the frozen rates of every expense touched by prior runs,
// in pages, then removes the state file. Daily rates are untouched.
func (m *Migrator) Rollback(ctx context.Context) error {
	if !m.opts.EnableRollback {
		return errors.New("rollback is disabled for this run")
	}

	rlog, err := openRunLog(m.opts.LogFile)
	if err != nil {
		return err
	}
	defer rlog.Close()

	ids, err := m.rates.DistinctFrozenExpenseIDs(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing frozen expense ids: %v", apperrors.ErrMigrationFailure, err)
	}
	rlog.Printf("rollback: removing frozen rates for %d expenses", len(ids))

	var removed int64
	for lo := 0; lo < len(ids); lo += rollbackPageSize {
		hi := lo + rollbackPageSize
		if hi > len(ids) {
			hi = len(ids)
		}
		n, err := m.rates.DeleteFrozenByExpenseIDs(ctx, ids[lo:hi])
		if err != nil {
			return fmt.Errorf("%w: deleting frozen rates: %v", apperrors.ErrMigrationFailure, err)
		}
		removed += n
	}

	if err := removeState(m.opts.StateFile); err != nil {
		return err
	}
	rlog.Printf("rollback complete: %d frozen rates removed", removed)
	m.log.Info("backfill rollback complete", zap.Int64("removed", removed), zap.Int("expenses", len(ids)))
	return nil
}

// Status returns the persisted state of the most recent run, or nil when no
// run has been recorded.
func (m *Migrator) Status() *models.MigrationState {
	return loadState(m.opts.StateFile)
}
