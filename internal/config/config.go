package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	apperrors "github.com/viscontia/expensefx/internal/errors"
)

// Config holds all environment-driven settings for the rate subsystem and
// the server around it.
type Config struct {
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// Provider endpoint with a {base} placeholder, e.g.
	// https://api.exchangerate-api.com/v4/latest/{base}
	ProviderURL     string        `env:"FX_PROVIDER_URL,required"`
	ProviderTimeout time.Duration `env:"FX_PROVIDER_TIMEOUT" envDefault:"5s"`
	// Provider quota is shared process-wide; requests per second.
	ProviderRateLimit float64 `env:"FX_PROVIDER_RATE_LIMIT" envDefault:"4"`

	BaseCurrencies   []string `env:"FX_BASE_CURRENCIES" envSeparator:"," envDefault:"EUR,USD"`
	TargetCurrencies []string `env:"FX_TARGET_CURRENCIES" envSeparator:"," envDefault:"EUR,USD,GBP,ZAR,JPY,CHF,AUD,CAD"`

	CacheCapacity int `env:"FX_CACHE_CAPACITY" envDefault:"5000"`

	// Horizon within which a DailyRate still counts as "current".
	StalenessHorizon time.Duration `env:"FX_STALENESS_HORIZON" envDefault:"1h"`
	// Nearest-rate windows, in days.
	ConversionWindowDays int `env:"FX_CONVERSION_WINDOW_DAYS" envDefault:"7"`
	MigrationWindowDays  int `env:"FX_MIGRATION_WINDOW_DAYS" envDefault:"30"`

	MigratorBatchSize  int           `env:"MIGRATOR_BATCH_SIZE" envDefault:"50"`
	MigratorMaxRetries int           `env:"MIGRATOR_MAX_RETRIES" envDefault:"3"`
	MigratorRetryDelay time.Duration `env:"MIGRATOR_RETRY_DELAY" envDefault:"1s"`
	MigratorStateFile  string        `env:"MIGRATOR_STATE_FILE" envDefault:"backfill_state.json"`
	MigratorLogFile    string        `env:"MIGRATOR_LOG_FILE" envDefault:"backfill.log"`
}

// Load parses configuration from the environment. A missing required
// variable or an inconsistent currency matrix is fatal for the caller.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}

	if !strings.Contains(cfg.ProviderURL, "{base}") {
		return nil, fmt.Errorf("%w: FX_PROVIDER_URL must contain a {base} placeholder", apperrors.ErrConfiguration)
	}

	cfg.BaseCurrencies = normalize(cfg.BaseCurrencies)
	cfg.TargetCurrencies = normalize(cfg.TargetCurrencies)
	if len(cfg.BaseCurrencies) == 0 || len(cfg.TargetCurrencies) == 0 {
		return nil, fmt.Errorf("%w: base and target currency lists must be non-empty", apperrors.ErrConfiguration)
	}
	for _, b := range cfg.BaseCurrencies {
		if !contains(cfg.TargetCurrencies, b) {
			cfg.TargetCurrencies = append(cfg.TargetCurrencies, b)
		}
	}

	return cfg, nil
}

// BaseCurrency returns the pivot currency B (first configured base).
func (c *Config) BaseCurrency() string {
	return c.BaseCurrencies[0]
}

// Currencies returns the closed set S, sorted as configured.
func (c *Config) Currencies() []string {
	return c.TargetCurrencies
}

// IsSupported reports whether code belongs to the configured set S.
func (c *Config) IsSupported(code string) bool {
	return contains(c.TargetCurrencies, strings.ToUpper(code))
}

// ProviderURLFor substitutes base into the endpoint template.
func (c *Config) ProviderURLFor(base string) string {
	return strings.ReplaceAll(c.ProviderURL, "{base}", strings.ToUpper(base))
}

func normalize(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if len(c) == 3 && !contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func contains(list []string, code string) bool {
	for _, c := range list {
		if c == code {
			return true
		}
	}
	return false
}
