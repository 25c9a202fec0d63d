package reports

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Repository reads settled orders and manages expenses.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	SettledOrders(ctx context.Context, from, to time.Time) ([]models.Order, error)
	CreateExpense(ctx context.Context, expense *models.Expense) error
	ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reports repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// SettledOrders loads paid and closed orders whose payment falls in
// [from, to), with their line items.
func (r *repository) SettledOrders(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status IN ?", []enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusClosed}).
		Where("paid_at >= ? AND paid_at < ?", from.UTC(), to.UTC()).
		Order("paid_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) CreateExpense(ctx context.Context, expense *models.Expense) error {
	return r.db.WithContext(ctx).Create(expense).Error
}

func (r *repository) ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	var expenses []models.Expense
	if err := r.db.WithContext(ctx).
		Where("spent_at >= ? AND spent_at < ?", from.UTC(), to.UTC()).
		Order("spent_at DESC").
		Order("id DESC").
		Find(&expenses).Error; err != nil {
		return nil, err
	}
	return expenses, nil
}
