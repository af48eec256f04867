package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the prometheus instruments for the rate subsystem. All
// methods tolerate a nil receiver so components can run uninstrumented in
// tests.
type Metrics struct {
	ConversionsTotal   *prometheus.CounterVec
	ProviderRequests   *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	CacheEntries       prometheus.Gauge
	RefreshRunsTotal   *prometheus.CounterVec
	CaptureTotal       *prometheus.CounterVec
	MigratorProcessed  prometheus.Counter
	MigratorErrors     prometheus.Counter
}

// New registers the subsystem's instruments on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConversionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expensefx_conversions_total",
			Help: "Currency conversions served, by provenance.",
		}, []string{"provenance"}),
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expensefx_provider_requests_total",
			Help: "Outbound rate provider requests, by outcome.",
		}, []string{"outcome"}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "expensefx_cache_hits_total",
			Help: "Rate cache hits.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "expensefx_cache_misses_total",
			Help: "Rate cache misses.",
		}),
		CacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "expensefx_cache_entries",
			Help: "Live rate cache entries.",
		}),
		RefreshRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expensefx_refresh_runs_total",
			Help: "Daily refresh attempts, by result.",
		}, []string{"result"}),
		CaptureTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expensefx_capture_total",
			Help: "Rate capture runs, by result.",
		}, []string{"result"}),
		MigratorProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "expensefx_migrator_processed_total",
			Help: "Expenses processed by the backfill migrator.",
		}),
		MigratorErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "expensefx_migrator_errors_total",
			Help: "Per-expense backfill errors.",
		}),
	}
}

func (m *Metrics) Conversion(provenance string) {
	if m == nil {
		return
	}
	m.ConversionsTotal.WithLabelValues(provenance).Inc()
}

func (m *Metrics) ProviderRequest(outcome string) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

func (m *Metrics) RefreshRun(result string) {
	if m == nil {
		return
	}
	m.RefreshRunsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Capture(result string) {
	if m == nil {
		return
	}
	m.CaptureTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) MigratorExpense(failed bool) {
	if m == nil {
		return
	}
	m.MigratorProcessed.Inc()
	if failed {
		m.MigratorErrors.Inc()
	}
}
