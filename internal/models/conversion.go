package models

import (
	"github.com/shopspring/decimal"
)

// Provenance identifies which source of the fallback chain produced a
// conversion's rate.
type Provenance string

const (
	ProvenanceIdentity     Provenance = "identity"
	ProvenanceFrozen       Provenance = "frozen"
	ProvenanceInterpolated Provenance = "interpolated"
	ProvenanceCurrent      Provenance = "current"
	ProvenanceFallback     Provenance = "fallback-hardcoded"
)

// IsValidProvenance checks if the provenance tag is one of the closed set
func IsValidProvenance(p Provenance) bool {
	switch p {
	case ProvenanceIdentity, ProvenanceFrozen, ProvenanceInterpolated, ProvenanceCurrent, ProvenanceFallback:
		return true
	}
	return false
}

// Conversion is the result of resolving an amount from one currency to
// another. DaysDifference is set only for interpolated results.
type Conversion struct {
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	FromCurrency    string          `json:"from_currency"`
	ToCurrency      string          `json:"to_currency"`
	ConvertedAmount decimal.Decimal `json:"converted_amount"`
	Rate            decimal.Decimal `json:"rate"`
	Provenance      Provenance      `json:"provenance"`
	DaysDifference  int             `json:"days_difference,omitempty"`
}

// Rounded returns the converted amount narrowed to two fractional digits for
// presentation. Internal arithmetic stays at full decimal precision.
func (c *Conversion) Rounded() decimal.Decimal {
	return c.ConvertedAmount.Round(2)
}
