package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/viscontia/expensefx/internal/cache"
	"github.com/viscontia/expensefx/internal/config"
	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/store"
	"github.com/viscontia/expensefx/internal/telemetry"
)

// captureTimeout bounds one background capture run, provider calls included.
const captureTimeout = 30 * time.Second

// CaptureServiceImpl freezes current rates for an expense at creation time
// and on date-altering updates.
type CaptureServiceImpl struct {
	store    store.RateStore
	provider RateProvider
	cache    *cache.RateCache
	cfg      *config.Config
	log      *zap.Logger
	metrics  *telemetry.Metrics
}

func NewCaptureService(rateStore store.RateStore, provider RateProvider, rateCache *cache.RateCache, cfg *config.Config, log *zap.Logger, metrics *telemetry.Metrics) CaptureService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CaptureServiceImpl{
		store:    rateStore,
		provider: provider,
		cache:    rateCache,
		cfg:      cfg,
		log:      log.Named("fx_capture"),
		metrics:  metrics,
	}
}

func (s *CaptureServiceImpl) CaptureForExpense(ctx context.Context, expenseID int64) error {
	currencies := s.cfg.Currencies()
	batch := make([]models.RatePair, 0, len(currencies)*(len(currencies)-1))

	for _, from := range currencies {
		for _, to := range currencies {
			if from == to {
				continue
			}
			r, err := s.provider.CurrentRate(ctx, from, to)
			if err != nil {
				s.log.Warn("skipping pair during capture",
					zap.Int64("expense_id", expenseID),
					zap.String("from", from),
					zap.String("to", to),
					zap.Error(err),
				)
				continue
			}
			batch = append(batch, models.RatePair{FromCurrency: from, ToCurrency: to, Rate: r})
		}
	}

	if len(batch) == 0 {
		s.log.Error("no rates available for capture", zap.Int64("expense_id", expenseID))
		s.metrics.Capture("empty")
		return fmt.Errorf("no rates available to freeze for expense %d", expenseID)
	}

	// Conflict-ignore keeps earlier captures intact; a partial set from an
	// interrupted run is completed on the next attempt.
	if err := s.store.PutFrozen(ctx, expenseID, batch, time.Now().UTC()); err != nil {
		s.metrics.Capture("error")
		return err
	}
	if s.cache != nil {
		s.cache.Set(strconv.FormatInt(expenseID, 10), cache.KeyExpenseRatesBundle, batch)
	}

	s.log.Info("captured rates for expense",
		zap.Int64("expense_id", expenseID),
		zap.Int("pairs", len(batch)),
	)
	s.metrics.Capture("success")
	return nil
}

// ScheduleCapture runs the capture off the request path. The expense write
// has already succeeded; a capture failure only shows up as lag in
// captured_at.
func (s *CaptureServiceImpl) ScheduleCapture(expenseID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		defer cancel()
		if err := s.CaptureForExpense(ctx, expenseID); err != nil {
			s.log.Warn("background capture failed",
				zap.Int64("expense_id", expenseID),
				zap.Error(err),
			)
		}
	}()
}

var _ CaptureService = (*CaptureServiceImpl)(nil)
