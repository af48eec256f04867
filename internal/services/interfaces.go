package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/viscontia/expensefx/internal/models"
)

// RateProvider fetches current rates from the external HTTP endpoint. It has
// a bounded timeout and never retries; retry policy belongs to callers.
type RateProvider interface {
	// FetchLatest requests the provider's rate map for base, bypassing the
	// cache. Targets missing from the provider response are absent in the
	// result.
	FetchLatest(ctx context.Context, base string) (map[string]decimal.Decimal, error)
	// LatestRates is FetchLatest behind the api_response cache.
	LatestRates(ctx context.Context, base string) (map[string]decimal.Decimal, error)
	// CurrentRate resolves one directed pair behind the current_rate cache;
	// concurrent misses for the same pair coalesce into one provider call.
	CurrentRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// RefreshResult reports one daily refresh attempt. It is a value, never an
// exception: callers branch on Success/Skipped.
type RefreshResult struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped"`
	Updated int    `json:"updated,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ForceRefreshResult reports a force refresh, whose rows all share Timestamp.
type ForceRefreshResult struct {
	Success   bool      `json:"success"`
	Updated   int       `json:"updated"`
	Timestamp time.Time `json:"timestamp"`
}

// LastUpdateResult reports when rates were last refreshed.
type LastUpdateResult struct {
	Success        bool           `json:"success"`
	LastUpdateDate *time.Time     `json:"last_update_date"`
	DebugInfo      map[string]any `json:"debug_info,omitempty"`
}

// RefreshStatus is the client-facing freshness indicator.
type RefreshStatus struct {
	Healthy     bool       `json:"healthy"`
	NeedsUpdate bool       `json:"needs_update"`
	LastUpdate  *time.Time `json:"last_update"`
	Error       string     `json:"error,omitempty"`
}

// RefreshService keeps the daily rate table populated, at least one
// successful refresh per UTC day under normal uptime.
type RefreshService interface {
	// UpdateDaily refreshes today's rates unless they already exist; force
	// refreshes regardless. Concurrent invocations serialize per day.
	UpdateDaily(ctx context.Context, force bool) *RefreshResult
	// ForceUpdate clears the daily table and repopulates every configured
	// pair with one shared timestamp.
	ForceUpdate(ctx context.Context) (*ForceRefreshResult, error)
	// Heartbeat triggers UpdateDaily at most once per calendar day per
	// process. Used by client sign-of-life requests.
	Heartbeat(ctx context.Context)
	// LastUpdate returns the most recent sample timestamp.
	LastUpdate(ctx context.Context) *LastUpdateResult
	// Status reports freshness with a one-day grace horizon.
	Status(ctx context.Context) *RefreshStatus
}

// CaptureService freezes the rates relevant to one expense.
type CaptureService interface {
	// CaptureForExpense freezes every resolvable ordered pair of the
	// configured set for the expense. Existing frozen rates are left alone.
	CaptureForExpense(ctx context.Context, expenseID int64) error
	// ScheduleCapture runs CaptureForExpense in the background; failure is
	// logged and never propagates to the expense write.
	ScheduleCapture(expenseID int64)
}

// ConversionService resolves amounts between currencies through the fallback
// chain. Convert rejects a non-positive amount or an unsupported currency with
// a validation error; for valid input it always produces a result, and
// chain-step failures downgrade to the next step.
type ConversionService interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string, expenseID *int64) (*models.Conversion, error)
	// Rate resolves the pair without an amount (amount 1).
	Rate(ctx context.Context, from, to string) (*models.Conversion, error)
}
