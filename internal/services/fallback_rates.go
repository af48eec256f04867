package services

import (
	"github.com/shopspring/decimal"
)

// fallbackRates is the last-resort hardcoded map, step 6 of the chain. The
// values are deliberately coarse; they only exist so a conversion can still
// answer when the store and the provider are both empty. Declared as decimal
// literals so no binary float ever enters the rate path.
var fallbackRates = map[string]decimal.Decimal{
	"EUR_USD": decimal.RequireFromString("1.08"),
	"USD_EUR": decimal.RequireFromString("0.93"),
	"EUR_GBP": decimal.RequireFromString("0.85"),
	"GBP_EUR": decimal.RequireFromString("1.18"),
	"EUR_ZAR": decimal.RequireFromString("20.5"),
	"ZAR_EUR": decimal.RequireFromString("0.0488"),
	"USD_ZAR": decimal.RequireFromString("19.0"),
	"ZAR_USD": decimal.RequireFromString("0.0526"),
	"USD_GBP": decimal.RequireFromString("0.79"),
	"GBP_USD": decimal.RequireFromString("1.27"),
	"EUR_JPY": decimal.RequireFromString("162.0"),
	"JPY_EUR": decimal.RequireFromString("0.0062"),
	"EUR_CHF": decimal.RequireFromString("0.94"),
	"CHF_EUR": decimal.RequireFromString("1.06"),
}

// FallbackRate returns the hardcoded rate for a directed pair, if any.
func FallbackRate(from, to string) (decimal.Decimal, bool) {
	if r, ok := fallbackRates[RateKey(from, to)]; ok {
		return r, true
	}
	return decimal.Zero, false
}
