package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/viscontia/expensefx/internal/cache"
	"github.com/viscontia/expensefx/internal/config"
	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/telemetry"
)

// HTTPRateProvider fetches current rates from an endpoint of the form
// …/latest/{base}.
type HTTPRateProvider struct {
	cfg        *config.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.RateCache
	log        *zap.Logger
	metrics    *telemetry.Metrics
}

// latestRatesResponse represents the provider response structure
type latestRatesResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// NewHTTPRateProvider creates the provider client. The limiter guards the
// shared provider quota for the whole process.
func NewHTTPRateProvider(cfg *config.Config, rateCache *cache.RateCache, log *zap.Logger, metrics *telemetry.Metrics) RateProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPRateProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.ProviderTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.ProviderRateLimit), 1),
		cache:      rateCache,
		log:        log.Named("fx_provider"),
		metrics:    metrics,
	}
}

func (p *HTTPRateProvider) FetchLatest(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	base = strings.ToUpper(base)
	if !p.cfg.IsSupported(base) {
		return nil, &apperrors.ErrValidation{Field: "base", Message: "unsupported currency " + base}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, apperrors.ProviderUnavailable("rate limit wait", err)
	}

	url := p.cfg.ProviderURLFor(base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.ProviderUnavailable("build request", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.ProviderRequest("error")
		return nil, apperrors.ProviderUnavailable("fetch latest rates", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.ProviderRequest("error")
		return nil, apperrors.ProviderUnavailable("fetch latest rates", fmt.Errorf("provider returned status %d", resp.StatusCode))
	}

	var body latestRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		p.metrics.ProviderRequest("error")
		return nil, apperrors.ProviderUnavailable("decode response", err)
	}
	if len(body.Rates) == 0 {
		p.metrics.ProviderRequest("error")
		return nil, apperrors.ProviderUnavailable("decode response", fmt.Errorf("provider returned no rates for %s", base))
	}
	p.metrics.ProviderRequest("success")

	// Keep only configured targets; a target absent upstream is simply
	// absent here.
	result := make(map[string]decimal.Decimal, len(p.cfg.Currencies()))
	missing := 0
	for _, target := range p.cfg.Currencies() {
		if target == base {
			continue
		}
		if r, ok := body.Rates[target]; ok && r.IsPositive() {
			result[target] = r
		} else {
			missing++
		}
	}
	if missing > 0 {
		p.log.Warn("provider response missing targets",
			zap.String("base", base),
			zap.Int("missing", missing),
		)
	}
	return result, nil
}

func (p *HTTPRateProvider) LatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	base = strings.ToUpper(base)
	if p.cache == nil {
		return p.FetchLatest(ctx, base)
	}

	v, err := p.cache.GetOrCompute(ctx, base, cache.KeyAPIResponse, func(ctx context.Context) (any, error) {
		return p.FetchLatest(ctx, base)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]decimal.Decimal), nil
}

func (p *HTTPRateProvider) CurrentRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	resolve := func(ctx context.Context) (any, error) {
		rates, err := p.LatestRates(ctx, from)
		if err != nil {
			return decimal.Zero, err
		}
		r, ok := rates[to]
		if !ok {
			return decimal.Zero, apperrors.ProviderUnavailable("current rate",
				fmt.Errorf("rate not found for %s to %s", from, to))
		}
		return r, nil
	}

	if p.cache == nil {
		v, err := resolve(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		return v.(decimal.Decimal), nil
	}

	v, err := p.cache.GetOrCompute(ctx, RateKey(from, to), cache.KeyCurrentRate, resolve)
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// RateKey builds the cache key for a directed currency pair.
func RateKey(from, to string) string {
	return from + "_" + to
}

var _ RateProvider = (*HTTPRateProvider)(nil)
