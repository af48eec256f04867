package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/viscontia/expensefx/internal/config"
	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/store"
	"github.com/viscontia/expensefx/internal/telemetry"
)

// wallClockGrace is the horizon inside which the stored timestamp may be
// replaced by the server clock, masking minor storage-timezone skew.
const wallClockGrace = 3 * time.Hour

// statusGrace is how old the newest sample may be before clients are told to
// refresh.
const statusGrace = 24 * time.Hour

// RefreshServiceImpl implements RefreshService over the rate store and
// provider client.
type RefreshServiceImpl struct {
	store    store.RateStore
	provider RateProvider
	cfg      *config.Config
	log      *zap.Logger
	metrics  *telemetry.Metrics

	// Serializes concurrent refresh attempts per UTC day.
	flight singleflight.Group

	mu               sync.Mutex
	lastHeartbeatDay time.Time
}

func NewRefreshService(rateStore store.RateStore, provider RateProvider, cfg *config.Config, log *zap.Logger, metrics *telemetry.Metrics) RefreshService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RefreshServiceImpl{
		store:    rateStore,
		provider: provider,
		cfg:      cfg,
		log:      log.Named("fx_refresh"),
		metrics:  metrics,
	}
}

func (s *RefreshServiceImpl) UpdateDaily(ctx context.Context, force bool) *RefreshResult {
	today := models.DateOnly(time.Now())
	key := today.Format("2006-01-02")
	if force {
		key = "force:" + key
	}

	v, _, _ := s.flight.Do(key, func() (any, error) {
		return s.refresh(ctx, force, today), nil
	})
	return v.(*RefreshResult)
}

func (s *RefreshServiceImpl) refresh(ctx context.Context, force bool, today time.Time) *RefreshResult {
	if !force {
		exists, err := s.store.ExistsRatesForDay(ctx, today)
		if err != nil {
			s.metrics.RefreshRun("error")
			return &RefreshResult{Success: false, Error: err.Error()}
		}
		if exists {
			s.log.Debug("daily rates already present, skipping", zap.Time("day", today))
			s.metrics.RefreshRun("skipped")
			return &RefreshResult{Success: true, Skipped: true}
		}
	}

	pairs, fetchErrs := s.collectPairs(ctx)
	if len(pairs) == 0 {
		s.metrics.RefreshRun("error")
		msg := "no rates fetched from provider"
		if len(fetchErrs) > 0 {
			msg = fetchErrs[0].Error()
		}
		return &RefreshResult{Success: false, Error: msg}
	}

	now := time.Now().UTC()
	if force {
		// Clearing and re-inserting with one shared timestamp keeps every
		// pair's sample_date identical.
		if err := s.store.ClearAllDaily(ctx); err != nil {
			s.metrics.RefreshRun("error")
			return &RefreshResult{Success: false, Error: err.Error()}
		}
		if err := s.store.BatchPutDaily(ctx, pairs, now); err != nil {
			s.metrics.RefreshRun("error")
			return &RefreshResult{Success: false, Error: err.Error()}
		}
	} else {
		for _, p := range pairs {
			if err := s.store.PutDaily(ctx, p.FromCurrency, p.ToCurrency, p.Rate, now); err != nil {
				s.metrics.RefreshRun("error")
				return &RefreshResult{Success: false, Error: err.Error()}
			}
		}
	}

	s.log.Info("daily rates refreshed",
		zap.Int("updated", len(pairs)),
		zap.Bool("force", force),
		zap.Int("provider_failures", len(fetchErrs)),
	)
	s.metrics.RefreshRun("updated")
	return &RefreshResult{Success: true, Updated: len(pairs)}
}

// collectPairs fetches the rate map for each configured base and flattens it
// into directed pairs. A failing base is recorded and skipped; the other
// bases still contribute.
func (s *RefreshServiceImpl) collectPairs(ctx context.Context) ([]models.RatePair, []error) {
	var pairs []models.RatePair
	var errs []error
	for _, base := range s.cfg.BaseCurrencies {
		rates, err := s.provider.FetchLatest(ctx, base)
		if err != nil {
			s.log.Warn("provider fetch failed for base", zap.String("base", base), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		for target, r := range rates {
			pairs = append(pairs, models.RatePair{FromCurrency: base, ToCurrency: target, Rate: r})
		}
	}
	return pairs, errs
}

func (s *RefreshServiceImpl) ForceUpdate(ctx context.Context) (*ForceRefreshResult, error) {
	res := s.UpdateDaily(ctx, true)
	if !res.Success {
		return &ForceRefreshResult{Success: false}, nil
	}
	ts, err := s.store.LatestDailyUpdate(ctx)
	if err != nil || ts == nil {
		now := time.Now().UTC()
		ts = &now
	}
	return &ForceRefreshResult{Success: true, Updated: res.Updated, Timestamp: *ts}, nil
}

func (s *RefreshServiceImpl) Heartbeat(ctx context.Context) {
	today := models.DateOnly(time.Now())

	s.mu.Lock()
	if s.lastHeartbeatDay.Equal(today) {
		s.mu.Unlock()
		return
	}
	s.lastHeartbeatDay = today
	s.mu.Unlock()

	if res := s.UpdateDaily(ctx, false); !res.Success {
		s.log.Warn("heartbeat refresh failed", zap.String("error", res.Error))
	}
}

func (s *RefreshServiceImpl) LastUpdate(ctx context.Context) *LastUpdateResult {
	ts, err := s.store.LatestDailyUpdate(ctx)
	if err != nil {
		return &LastUpdateResult{Success: false, DebugInfo: map[string]any{"error": err.Error()}}
	}
	if ts == nil {
		return &LastUpdateResult{Success: true, LastUpdateDate: nil}
	}

	debug := map[string]any{"stored": ts.UTC().Format(time.RFC3339)}
	now := time.Now().UTC()
	// Within the grace window the server clock stands in for the stored
	// timestamp; storage may lag it by a timezone's worth of skew.
	if now.Sub(ts.UTC()) < wallClockGrace {
		debug["substituted"] = true
		return &LastUpdateResult{Success: true, LastUpdateDate: &now, DebugInfo: debug}
	}
	utc := ts.UTC()
	return &LastUpdateResult{Success: true, LastUpdateDate: &utc, DebugInfo: debug}
}

func (s *RefreshServiceImpl) Status(ctx context.Context) *RefreshStatus {
	ts, err := s.store.LatestDailyUpdate(ctx)
	if err != nil {
		return &RefreshStatus{Healthy: false, NeedsUpdate: true, Error: err.Error()}
	}
	if ts == nil {
		return &RefreshStatus{Healthy: false, NeedsUpdate: true}
	}
	utc := ts.UTC()
	age := time.Since(utc)
	return &RefreshStatus{
		Healthy:     age <= statusGrace,
		NeedsUpdate: age > statusGrace,
		LastUpdate:  &utc,
	}
}

var _ RefreshService = (*RefreshServiceImpl)(nil)
