package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DailyRate is a sampled snapshot of an inter-currency rate, at most one per
// (from, to, UTC day).
type DailyRate struct {
	ID           int             `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	FromCurrency string          `json:"from_currency" gorm:"column:from_currency;type:varchar(3);not null;uniqueIndex:idx_daily_rates_pair_day"`
	ToCurrency   string          `json:"to_currency" gorm:"column:to_currency;type:varchar(3);not null;uniqueIndex:idx_daily_rates_pair_day"`
	Rate         decimal.Decimal `json:"rate" gorm:"column:rate;type:decimal(20,8);not null"`
	SampleDate   time.Time       `json:"sample_date" gorm:"column:sample_date;type:timestamptz;not null;index"`
	Day          time.Time       `json:"day" gorm:"column:day;type:date;not null;uniqueIndex:idx_daily_rates_pair_day"`
}

// TableName returns the table name for the DailyRate model
func (DailyRate) TableName() string {
	return "daily_rates"
}

// Validate validates the daily rate data
func (r *DailyRate) Validate() error {
	if r.FromCurrency == "" {
		return errors.New("from_currency is required")
	}
	if r.ToCurrency == "" {
		return errors.New("to_currency is required")
	}
	if r.FromCurrency == r.ToCurrency {
		return errors.New("from_currency and to_currency must be different")
	}
	if r.Rate.IsZero() || r.Rate.IsNegative() {
		return errors.New("rate must be positive")
	}
	if r.SampleDate.IsZero() {
		return errors.New("sample_date is required")
	}
	return nil
}

// NearestRate is a daily rate resolved near a target day, carrying how far
// off the sample was.
type NearestRate struct {
	Rate           decimal.Decimal `json:"rate"`
	SampleDate     time.Time       `json:"sample_date"`
	DaysDifference int             `json:"days_difference"`
}

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
