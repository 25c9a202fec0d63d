package tables

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

var openStatuses = []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid}

// Repository handles dining table persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to table operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// List returns every table ordered by name.
func (r *Repository) List(ctx context.Context) ([]models.DiningTable, error) {
	var tables []models.DiningTable
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&tables).Error; err != nil {
		return nil, err
	}
	return tables, nil
}

// FindByID loads a table by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DiningTable, error) {
	var table models.DiningTable
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

// Create persists a new table row.
func (r *Repository) Create(ctx context.Context, table *models.DiningTable) error {
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(table).Error
}

// UpdateStatus moves the table only if it is still in from.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.TableStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DiningTable{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// OpenOrders loads pending and paid orders with their items and table links.
func (r *Repository) OpenOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Tables").
		Where("status IN ?", openStatuses).
		Order("created_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// CountOpenOrders counts pending and paid orders seated at the table.
func (r *Repository) CountOpenOrders(ctx context.Context, tableID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Joins("JOIN order_tables ON order_tables.order_id = orders.id").
		Where("order_tables.table_id = ? AND orders.status IN ?", tableID, openStatuses).
		Count(&count).Error
	return count, err
}
