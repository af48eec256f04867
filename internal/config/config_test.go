package config

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/viscontia/expensefx/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FX_PROVIDER_URL", "https://rates.example/latest/{base}")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseCurrency() != "EUR" {
		t.Errorf("base = %s, want EUR", cfg.BaseCurrency())
	}
	if cfg.ProviderTimeout != 5*time.Second {
		t.Errorf("provider timeout = %v, want 5s", cfg.ProviderTimeout)
	}
	if cfg.StalenessHorizon != time.Hour {
		t.Errorf("staleness horizon = %v, want 1h", cfg.StalenessHorizon)
	}
	if cfg.ConversionWindowDays != 7 || cfg.MigrationWindowDays != 30 {
		t.Errorf("windows = %d/%d, want 7/30", cfg.ConversionWindowDays, cfg.MigrationWindowDays)
	}
	if cfg.MigratorBatchSize != 50 || cfg.MigratorMaxRetries != 3 {
		t.Errorf("migrator defaults = %d/%d, want 50/3", cfg.MigratorBatchSize, cfg.MigratorMaxRetries)
	}
	if !cfg.IsSupported("ZAR") || cfg.IsSupported("XXX") {
		t.Error("supported-set membership broken")
	}
}

func TestLoadMissingProviderURL(t *testing.T) {
	t.Setenv("FX_PROVIDER_URL", "")

	_, err := Load()
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadRequiresBasePlaceholder(t *testing.T) {
	t.Setenv("FX_PROVIDER_URL", "https://rates.example/latest/EUR")

	_, err := Load()
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadBasesJoinTargets(t *testing.T) {
	t.Setenv("FX_PROVIDER_URL", "https://rates.example/latest/{base}")
	t.Setenv("FX_BASE_CURRENCIES", "EUR,USD")
	t.Setenv("FX_TARGET_CURRENCIES", "zar, gbp")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, code := range []string{"ZAR", "GBP", "EUR", "USD"} {
		if !cfg.IsSupported(code) {
			t.Errorf("%s missing from the currency set", code)
		}
	}
}

func TestProviderURLFor(t *testing.T) {
	t.Setenv("FX_PROVIDER_URL", "https://rates.example/v4/latest/{base}")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.ProviderURLFor("eur"); got != "https://rates.example/v4/latest/EUR" {
		t.Errorf("url = %s", got)
	}
}
