package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a single recorded expense. The rate subsystem reads id, amount,
// currency and transaction date, and attaches FrozenRates keyed by id.
type Expense struct {
	ID              int64           `json:"id" gorm:"primaryKey;column:id;autoIncrement"`
	Amount          decimal.Decimal `json:"amount" gorm:"column:amount;type:decimal(20,2);not null"`
	Currency        string          `json:"currency" gorm:"column:currency;type:varchar(3);not null;index"`
	TransactionDate time.Time       `json:"transaction_date" gorm:"column:transaction_date;type:timestamptz;not null;index"`
	Description     string          `json:"description" gorm:"column:description;type:text"`
	Category        string          `json:"category" gorm:"column:category;type:varchar(100);index"`

	// Pre-dates the frozen-rate table; read by the backfill migrator as its
	// first-preference source, never written by new code.
	ConversionRate decimal.Decimal `json:"conversion_rate" gorm:"column:conversion_rate;type:decimal(20,8);default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

// TableName returns the table name for the Expense model
func (Expense) TableName() string {
	return "expenses"
}

// Validate validates the expense data
func (e *Expense) Validate() error {
	if e.Amount.IsZero() || e.Amount.IsNegative() {
		return errors.New("amount must be positive")
	}
	if len(e.Currency) != 3 {
		return errors.New("currency must be a 3-letter code")
	}
	if e.TransactionDate.IsZero() {
		return errors.New("transaction_date is required")
	}
	return nil
}

// ExpenseFilter represents filters for querying expenses
type ExpenseFilter struct {
	Currency  string
	Category  string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
