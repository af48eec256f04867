package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/viscontia/expensefx/internal/cache"
	"github.com/viscontia/expensefx/internal/config"
	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/store"
	"github.com/viscontia/expensefx/internal/telemetry"
)

// ConversionServiceImpl resolves conversions through the fallback chain:
// identity, frozen, interpolated, fresh daily, provider, stale daily,
// hardcoded, unit rate. A step's failure downgrades to the next step and
// never aborts the call.
type ConversionServiceImpl struct {
	rates    store.RateStore
	expenses store.ExpenseStore
	provider RateProvider
	cache    *cache.RateCache
	cfg      *config.Config
	log      *zap.Logger
	metrics  *telemetry.Metrics
}

func NewConversionService(
	rates store.RateStore,
	expenses store.ExpenseStore,
	provider RateProvider,
	rateCache *cache.RateCache,
	cfg *config.Config,
	log *zap.Logger,
	metrics *telemetry.Metrics,
) ConversionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConversionServiceImpl{
		rates:    rates,
		expenses: expenses,
		provider: provider,
		cache:    rateCache,
		cfg:      cfg,
		log:      log.Named("fx_convert"),
		metrics:  metrics,
	}
}

func (s *ConversionServiceImpl) Rate(ctx context.Context, from, to string) (*models.Conversion, error) {
	return s.Convert(ctx, decimal.NewFromInt(1), from, to, nil)
}

func (s *ConversionServiceImpl) Convert(ctx context.Context, amount decimal.Decimal, from, to string, expenseID *int64) (*models.Conversion, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if amount.IsNegative() || amount.IsZero() {
		return nil, &apperrors.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if !s.cfg.IsSupported(from) {
		return nil, &apperrors.ErrValidation{Field: "from", Message: "unsupported currency " + from}
	}
	if !s.cfg.IsSupported(to) {
		return nil, &apperrors.ErrValidation{Field: "to", Message: "unsupported currency " + to}
	}

	// Step 0: identity.
	if from == to {
		c := s.result(amount, from, to, decimal.NewFromInt(1), models.ProvenanceIdentity, 0)
		return c, nil
	}

	keyType := cache.KeyConversionCurrent
	key := ConversionKey(amount, from, to, expenseID)
	if expenseID != nil {
		keyType = cache.KeyConversionHistorical
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(key, keyType); ok {
			return v.(*models.Conversion), nil
		}
	}

	conv := s.resolve(ctx, amount, from, to, expenseID)

	if s.cache != nil {
		s.cache.Set(key, keyType, conv)
	}
	s.metrics.Conversion(string(conv.Provenance))
	return conv, nil
}

func (s *ConversionServiceImpl) resolve(ctx context.Context, amount decimal.Decimal, from, to string, expenseID *int64) *models.Conversion {
	// Step 1: the frozen per-expense rate wins in perpetuity.
	if expenseID != nil {
		histKey := FrozenRateKey(*expenseID, from, to)
		if s.cache != nil {
			if v, ok := s.cache.Get(histKey, cache.KeyHistoricalRate); ok {
				return s.result(amount, from, to, v.(decimal.Decimal), models.ProvenanceFrozen, 0)
			}
		}
		frozen, err := s.rates.FindFrozen(ctx, *expenseID, from, to)
		if err != nil {
			s.stepWarn("frozen lookup", from, to, err)
		} else if frozen != nil {
			if s.cache != nil {
				s.cache.Set(histKey, cache.KeyHistoricalRate, frozen.Rate)
			}
			return s.result(amount, from, to, frozen.Rate, models.ProvenanceFrozen, 0)
		}

		// Step 2: nearest daily sample around the expense date.
		if conv := s.interpolated(ctx, amount, from, to, *expenseID); conv != nil {
			return conv
		}
	}

	// Step 3: a daily sample fresh within the staleness horizon.
	fresh, err := s.rates.FindDaily(ctx, from, to, s.cfg.StalenessHorizon)
	if err != nil {
		s.stepWarn("fresh daily lookup", from, to, err)
	} else if fresh != nil {
		return s.result(amount, from, to, fresh.Rate, models.ProvenanceCurrent, 0)
	}

	// Step 4: ask the provider, and persist what it said as today's sample.
	if r, err := s.provider.CurrentRate(ctx, from, to); err != nil {
		s.stepWarn("provider lookup", from, to, err)
	} else if r.IsPositive() {
		if err := s.rates.PutDaily(ctx, from, to, r, time.Now().UTC()); err != nil {
			s.stepWarn("persist provider rate", from, to, err)
		}
		return s.result(amount, from, to, r, models.ProvenanceCurrent, 0)
	}

	// Step 5: any stored sample, stale but usable.
	stale, err := s.rates.FindAnyDaily(ctx, from, to)
	if err != nil {
		s.stepWarn("stale daily lookup", from, to, err)
	} else if stale != nil {
		return s.result(amount, from, to, stale.Rate, models.ProvenanceCurrent, 0)
	}

	// Step 6: the hardcoded emergency map.
	if r, ok := FallbackRate(from, to); ok {
		return s.result(amount, from, to, r, models.ProvenanceFallback, 0)
	}

	// Step 7: unit rate. Reached only when every source is empty; logged as
	// the chain's terminal condition.
	s.log.Error("fallback chain exhausted, serving unit rate",
		zap.String("from", from),
		zap.String("to", to),
		zap.Error(apperrors.ErrRateMissing),
	)
	return s.result(amount, from, to, decimal.NewFromInt(1), models.ProvenanceCurrent, 0)
}

func (s *ConversionServiceImpl) interpolated(ctx context.Context, amount decimal.Decimal, from, to string, expenseID int64) *models.Conversion {
	expense, err := s.expenses.GetByID(ctx, expenseID)
	if err != nil {
		s.stepWarn("expense lookup", from, to, err)
		return nil
	}
	if expense == nil {
		return nil
	}

	nearest, err := s.rates.FindNearestDaily(ctx, from, to, expense.TransactionDate, s.cfg.ConversionWindowDays)
	if err != nil {
		s.stepWarn("nearest daily lookup", from, to, err)
		return nil
	}
	if nearest == nil {
		return nil
	}
	return s.result(amount, from, to, nearest.Rate, models.ProvenanceInterpolated, nearest.DaysDifference)
}

func (s *ConversionServiceImpl) result(amount decimal.Decimal, from, to string, rate decimal.Decimal, p models.Provenance, daysDiff int) *models.Conversion {
	return &models.Conversion{
		OriginalAmount:  amount,
		FromCurrency:    from,
		ToCurrency:      to,
		ConvertedAmount: amount.Mul(rate),
		Rate:            rate,
		Provenance:      p,
		DaysDifference:  daysDiff,
	}
}

func (s *ConversionServiceImpl) stepWarn(step, from, to string, err error) {
	s.log.Warn("fallback step failed, continuing",
		zap.String("step", step),
		zap.String("from", from),
		zap.String("to", to),
		zap.Error(err),
	)
}

// FrozenRateKey builds the cache key for a frozen per-expense rate.
func FrozenRateKey(expenseID int64, from, to string) string {
	return strconv.FormatInt(expenseID, 10) + "_" + from + "_" + to
}

// ConversionKey builds the cache key for a conversion result.
func ConversionKey(amount decimal.Decimal, from, to string, expenseID *int64) string {
	key := amount.String() + "_" + from + "_" + to
	if expenseID != nil {
		key += "_" + strconv.FormatInt(*expenseID, 10)
	}
	return key
}

var _ ConversionService = (*ConversionServiceImpl)(nil)
