package services

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/models"
	"github.com/viscontia/expensefx/internal/store"
)

// ExpenseService is the lifecycle surface the rate subsystem hangs off:
// create always captures, update captures only when the transaction date
// moved, delete cascades frozen rates through the store.
type ExpenseService interface {
	Create(ctx context.Context, e *models.Expense) error
	Get(ctx context.Context, id int64) (*models.Expense, error)
	List(ctx context.Context, filter *models.ExpenseFilter) ([]*models.Expense, error)
	Update(ctx context.Context, e *models.Expense) error
	Delete(ctx context.Context, id int64) error
}

// ExpenseServiceImpl implements ExpenseService
type ExpenseServiceImpl struct {
	store   store.ExpenseStore
	capture CaptureService
	log     *zap.Logger
}

func NewExpenseService(expenseStore store.ExpenseStore, capture CaptureService, log *zap.Logger) ExpenseService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExpenseServiceImpl{store: expenseStore, capture: capture, log: log.Named("expenses")}
}

func (s *ExpenseServiceImpl) Create(ctx context.Context, e *models.Expense) error {
	if err := s.store.Create(ctx, e); err != nil {
		return err
	}
	// Best-effort freeze; the expense write above is already durable.
	if s.capture != nil {
		s.capture.ScheduleCapture(e.ID)
	}
	return nil
}

func (s *ExpenseServiceImpl) Get(ctx context.Context, id int64) (*models.Expense, error) {
	return s.store.GetByID(ctx, id)
}

func (s *ExpenseServiceImpl) List(ctx context.Context, filter *models.ExpenseFilter) ([]*models.Expense, error) {
	return s.store.List(ctx, filter)
}

func (s *ExpenseServiceImpl) Update(ctx context.Context, e *models.Expense) error {
	existing, err := s.store.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return &apperrors.ErrValidation{Field: "id", Message: "expense not found"}
	}

	dateChanged := !existing.TransactionDate.Equal(e.TransactionDate)
	e.CreatedAt = existing.CreatedAt

	if err := s.store.Update(ctx, e); err != nil {
		return err
	}
	if dateChanged && s.capture != nil {
		s.log.Debug("transaction date changed, re-capturing rates", zap.Int64("expense_id", e.ID))
		s.capture.ScheduleCapture(e.ID)
	}
	return nil
}

func (s *ExpenseServiceImpl) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

var _ ExpenseService = (*ExpenseServiceImpl)(nil)
