package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/viscontia/expensefx/internal/db"
	apperrors "github.com/viscontia/expensefx/internal/errors"
	"github.com/viscontia/expensefx/internal/models"
)

type expenseStore struct {
	db *db.DB
}

// NewExpenseStore creates a gorm-backed expense store.
func NewExpenseStore(database *db.DB) ExpenseStore {
	return &expenseStore{db: database}
}

func (s *expenseStore) Create(ctx context.Context, e *models.Expense) error {
	if err := e.Validate(); err != nil {
		return &apperrors.ErrValidation{Field: "expense", Message: err.Error()}
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return apperrors.StoreUnavailable("create expense", err)
	}
	return nil
}

func (s *expenseStore) GetByID(ctx context.Context, id int64) (*models.Expense, error) {
	var e models.Expense
	err := s.db.WithContext(ctx).First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.StoreUnavailable("get expense", err)
	}
	return &e, nil
}

func (s *expenseStore) List(ctx context.Context, filter *models.ExpenseFilter) ([]*models.Expense, error) {
	q := s.db.WithContext(ctx).Model(&models.Expense{})
	if filter != nil {
		if filter.Currency != "" {
			q = q.Where("currency = ?", filter.Currency)
		}
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.StartDate != nil {
			q = q.Where("transaction_date >= ?", *filter.StartDate)
		}
		if filter.EndDate != nil {
			q = q.Where("transaction_date <= ?", *filter.EndDate)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}

	var out []*models.Expense
	if err := q.Order("transaction_date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, apperrors.StoreUnavailable("list expenses", err)
	}
	return out, nil
}

func (s *expenseStore) Update(ctx context.Context, e *models.Expense) error {
	if err := e.Validate(); err != nil {
		return &apperrors.ErrValidation{Field: "expense", Message: err.Error()}
	}
	if err := s.db.WithContext(ctx).Save(e).Error; err != nil {
		return apperrors.StoreUnavailable("update expense", err)
	}
	return nil
}

func (s *expenseStore) Delete(ctx context.Context, id int64) error {
	// Frozen rates go with the expense via the FK cascade.
	if err := s.db.WithContext(ctx).Delete(&models.Expense{}, id).Error; err != nil {
		return apperrors.StoreUnavailable("delete expense", err)
	}
	return nil
}

func (s *expenseStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Expense{}).Count(&count).Error; err != nil {
		return 0, apperrors.StoreUnavailable("count expenses", err)
	}
	return int(count), nil
}

func (s *expenseStore) ListBatchAfter(ctx context.Context, afterID int64, limit int) ([]*models.Expense, error) {
	var out []*models.Expense
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, apperrors.StoreUnavailable("list expense batch", err)
	}
	return out, nil
}

var _ ExpenseStore = (*expenseStore)(nil)
