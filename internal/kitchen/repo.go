package kitchen

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/repo"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Repository is the persistence surface of the kitchen views.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ActiveOrderIDs(ctx context.Context) ([]uuid.UUID, error)
	LineItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]models.OrderLineItem, error)
	MenuItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)
	TablesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.DiningTable, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindLineItem(ctx context.Context, lineItemID uuid.UUID) (*models.OrderLineItem, error)
	FindWaitingLineItemsByName(ctx context.Context, name string) ([]models.OrderLineItem, error)
	UpdateLineItemStatus(ctx context.Context, lineItemID uuid.UUID, from, to enums.LineItemStatus, at time.Time) (bool, error)
	CreateNotification(ctx context.Context, notification *models.KitchenNotification) error
}

type repository struct {
	repo.Base
}

// NewRepository builds a kitchen repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

// ActiveOrderIDs returns open orders that still have unserved lines.
func (r *repository) ActiveOrderIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Distinct().
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid}).
		Where("order_items.status <> ?", enums.LineItemStatusServed).
		Where("order_items.quantity > order_items.returned_quantity").
		Pluck("order_items.order_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) LineItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]models.OrderLineItem, error) {
	out := make(map[uuid.UUID][]models.OrderLineItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	var items []models.OrderLineItem
	err := r.DB(ctx).
		Where("order_id IN ?", orderIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	for _, id := range orderIDs {
		out[id] = []models.OrderLineItem{}
	}
	for _, item := range items {
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	return out, nil
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

func (r *repository) TablesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.DiningTable, error) {
	out := make(map[uuid.UUID]models.DiningTable, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var tables []models.DiningTable
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&tables).Error; err != nil {
		return nil, err
	}
	for _, table := range tables {
		out[table.ID] = table
	}
	return out, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Preload("Tables").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindLineItem(ctx context.Context, lineItemID uuid.UUID) (*models.OrderLineItem, error) {
	var item models.OrderLineItem
	if err := r.DB(ctx).Where("id = ?", lineItemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// FindWaitingLineItemsByName returns waiting lines of open orders for an
// available menu item, oldest first.
func (r *repository) FindWaitingLineItemsByName(ctx context.Context, name string) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Select("order_items.*").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Joins("JOIN menu_items ON menu_items.id = order_items.menu_item_id").
		Where("order_items.name = ?", name).
		Where("order_items.status = ?", enums.LineItemStatusWaiting).
		Where("order_items.quantity > order_items.returned_quantity").
		Where("orders.status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid}).
		Where("menu_items.in_stock = ? AND menu_items.hidden = ?", true, false).
		Order("order_items.created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateLineItemStatus moves a line from -> to only if it is still at from.
// It reports false when the row was changed by someone else first.
func (r *repository) UpdateLineItemStatus(ctx context.Context, lineItemID uuid.UUID, from, to enums.LineItemStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case enums.LineItemStatusWaiting:
		updates["started_at"] = nil
	case enums.LineItemStatusInProgress:
		if from == enums.LineItemStatusWaiting {
			updates["started_at"] = at
		} else {
			updates["completed_at"] = nil
		}
	case enums.LineItemStatusCompleted:
		updates["completed_at"] = at
	case enums.LineItemStatusServed:
		updates["served_at"] = at
	}

	res := r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ? AND status = ?", lineItemID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateNotification(ctx context.Context, notification *models.KitchenNotification) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	return r.DB(ctx).Create(notification).Error
}
