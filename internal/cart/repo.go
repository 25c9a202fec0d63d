package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/repo"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

type repository struct {
	repo.Base
}

// NewRepository builds a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.DB(ctx).
		Where("table_id = ?", tableID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	if err := r.DB(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.DB(ctx).Create(item).Error
}

func (r *repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error {
	return r.DB(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{"quantity": quantity, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) DeleteItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	res := r.DB(ctx).Where("id = ?", itemID).Delete(&models.CartItem{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) DeleteByTable(ctx context.Context, tableID uuid.UUID) (int64, error) {
	res := r.DB(ctx).Where("table_id = ?", tableID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}

// StaleTables returns the tables whose cart has not been touched since cutoff.
func (r *repository) StaleTables(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.CartItem{}).
		Select("table_id").
		Group("table_id").
		Having("MAX(updated_at) < ?", cutoff.UTC()).
		Order("table_id").
		Pluck("table_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) FindTable(ctx context.Context, tableID uuid.UUID) (*models.DiningTable, error) {
	var table models.DiningTable
	if err := r.DB(ctx).Where("id = ?", tableID).First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *repository) UpdateTableStatus(ctx context.Context, tableID uuid.UUID, status enums.TableStatus) error {
	return r.DB(ctx).
		Model(&models.DiningTable{}).
		Where("id = ?", tableID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) MenuItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	out := make(map[uuid.UUID]models.MenuItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.MenuItem
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// FindOpenOrderForTable returns the pending order the table is attached to,
// or gorm.ErrRecordNotFound.
func (r *repository) FindOpenOrderForTable(ctx context.Context, tableID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Joins("JOIN order_tables ON order_tables.order_id = orders.id").
		Where("order_tables.table_id = ?", tableID).
		Where("orders.status = ?", enums.OrderStatusPending).
		Order("orders.created_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.DB(ctx).Omit("Items", "Tables").Create(order).Error
}

func (r *repository) LinkOrderTable(ctx context.Context, orderID, tableID uuid.UUID) error {
	link := models.OrderTable{OrderID: orderID, TableID: tableID}
	return r.DB(ctx).
		Where(models.OrderTable{OrderID: orderID, TableID: tableID}).
		FirstOrCreate(&link).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&items).Error
}

func (r *repository) OrderLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	if err := r.DB(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"total": total, "updated_at": time.Now().UTC()}).Error
}
