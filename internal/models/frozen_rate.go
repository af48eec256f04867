package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// FrozenRate is a rate permanently associated with one expense. Once written
// it is never updated; only expense deletion or migrator rollback removes it.
type FrozenRate struct {
	ID           int             `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	ExpenseID    int64           `json:"expense_id" gorm:"column:expense_id;not null;uniqueIndex:idx_frozen_rates_expense_pair;index"`
	FromCurrency string          `json:"from_currency" gorm:"column:from_currency;type:varchar(3);not null;uniqueIndex:idx_frozen_rates_expense_pair"`
	ToCurrency   string          `json:"to_currency" gorm:"column:to_currency;type:varchar(3);not null;uniqueIndex:idx_frozen_rates_expense_pair"`
	Rate         decimal.Decimal `json:"rate" gorm:"column:rate;type:decimal(20,8);not null"`
	CapturedAt   time.Time       `json:"captured_at" gorm:"column:captured_at;type:timestamptz;not null"`
}

// TableName returns the table name for the FrozenRate model
func (FrozenRate) TableName() string {
	return "frozen_rates"
}

// Validate validates the frozen rate data
func (r *FrozenRate) Validate() error {
	if r.ExpenseID <= 0 {
		return errors.New("expense_id is required")
	}
	if r.FromCurrency == "" || r.ToCurrency == "" {
		return errors.New("currency pair is required")
	}
	if r.FromCurrency == r.ToCurrency {
		return errors.New("from_currency and to_currency must be different")
	}
	if r.Rate.IsZero() || r.Rate.IsNegative() {
		return errors.New("rate must be positive")
	}
	return nil
}

// RatePair is one directed (from, to, rate) entry in a capture batch.
type RatePair struct {
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
}

// Inverse returns the reversed pair with rate 1/r, or a zero pair when the
// rate is zero.
func (p RatePair) Inverse() RatePair {
	if p.Rate.IsZero() {
		return RatePair{}
	}
	return RatePair{
		FromCurrency: p.ToCurrency,
		ToCurrency:   p.FromCurrency,
		Rate:         decimal.NewFromInt(1).Div(p.Rate),
	}
}
