package models

import (
	"errors"
	"time"
)

// Migration run statuses
const (
	MigrationStatusRunning   = "running"
	MigrationStatusPaused    = "paused"
	MigrationStatusCompleted = "completed"
	MigrationStatusFailed    = "failed"
)

// MigrationError records one expense the backfill could not migrate.
type MigrationError struct {
	ExpenseID int64     `json:"expense_id"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// MigrationState describes one backfill run. It is rewritten atomically
// after every batch and is the sole source of truth for resumption.
type MigrationState struct {
	RunID                  string           `json:"run_id"`
	Status                 string           `json:"status"`
	TotalExpenses          int              `json:"total_expenses"`
	ProcessedCount         int              `json:"processed_count"`
	MigratedCount          int              `json:"migrated_count"`
	SkippedCount           int              `json:"skipped_count"`
	LastProcessedExpenseID int64            `json:"last_processed_expense_id"`
	Errors                 []MigrationError `json:"errors"`
	StartedAt              time.Time        `json:"started_at"`
	DurationMs             int64            `json:"duration_ms"`
	BatchSize              int              `json:"batch_size"`
	MaxRetries             int              `json:"max_retries"`
}

// TransitionTo enforces the run state machine: running may pause, complete or
// fail; paused may only resume; completed and failed are terminal.
func (s *MigrationState) TransitionTo(status string) error {
	switch s.Status {
	case MigrationStatusRunning:
		if status == MigrationStatusPaused || status == MigrationStatusCompleted || status == MigrationStatusFailed {
			s.Status = status
			return nil
		}
	case MigrationStatusPaused:
		if status == MigrationStatusRunning {
			s.Status = status
			return nil
		}
	}
	return errors.New("invalid migration status transition: " + s.Status + " -> " + status)
}
