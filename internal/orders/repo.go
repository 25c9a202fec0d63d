package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/repo"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/pagination"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.Order{})
	if params.Status != nil {
		query = query.Where("orders.status = ?", *params.Status)
	}
	if params.TableID != nil {
		query = query.Where("EXISTS (SELECT 1 FROM order_tables ot WHERE ot.order_id = orders.id AND ot.table_id = ?)", *params.TableID)
	}
	if params.DateFrom != nil {
		query = query.Where("orders.created_at >= ?", params.DateFrom.UTC())
	}
	if params.DateTo != nil {
		query = query.Where("orders.created_at < ?", params.DateTo.UTC())
	}

	var orders []models.Order
	err := pagination.Keyset(query, "orders", params.Cursor).
		Preload("Items").
		Preload("Tables").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&orders).Error
	if err != nil {
		return nil, nil, err
	}

	page, next := pagination.Trim(orders, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("Tables").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOpenOrderForTable returns the pending order seated at the table, or
// gorm.ErrRecordNotFound.
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

// UpdateOrderStatus moves the order only if it is still in from. The bool
// reports whether the row changed.
func (r *repository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error) {
	updates := map[string]any{"status": to, "updated_at": at}
	switch to {
	case enums.OrderStatusPaid:
		updates["paid_at"] = at
	case enums.OrderStatusClosed:
		updates["closed_at"] = at
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = at
	}
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"total": total, "updated_at": time.Now().UTC()}).Error
}

// MarkMerged retires a source order after its lines moved to targetID.
func (r *repository) MarkMerged(ctx context.Context, orderID, targetID uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"status":       enums.OrderStatusCancelled,
			"merged_into":  targetID,
			"total":        decimal.Zero,
			"cancelled_at": at,
			"updated_at":   at,
		}).Error
}

func (r *repository) LinkOrderTable(ctx context.Context, orderID, tableID uuid.UUID) error {
	link := models.OrderTable{OrderID: orderID, TableID: tableID}
	return r.DB(ctx).
		Where(models.OrderTable{OrderID: orderID, TableID: tableID}).
		FirstOrCreate(&link).Error
}

func (r *repository) UnlinkOrderTable(ctx context.Context, orderID, tableID uuid.UUID) error {
	return r.DB(ctx).
		Where("order_id = ? AND table_id = ?", orderID, tableID).
		Delete(&models.OrderTable{}).Error
}

// CountOpenOrdersForTable counts pending or paid orders at the table other
// than exclude.
func (r *repository) CountOpenOrdersForTable(ctx context.Context, tableID uuid.UUID, exclude uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Order{}).
		Joins("JOIN order_tables ON order_tables.order_id = orders.id").
		Where("order_tables.table_id = ?", tableID).
		Where("orders.status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid}).
		Where("orders.id <> ?", exclude).
		Count(&count).Error
	return count, err
}

func (r *repository) OrderLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.OrderLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&items).Error
}

func (r *repository) MoveLineItem(ctx context.Context, lineItemID, orderID, tableID uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ?", lineItemID).
		Updates(map[string]any{"order_id": orderID, "table_id": tableID, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) MoveOrderLineItems(ctx context.Context, fromOrderID, toOrderID uuid.UUID) (int64, error) {
	res := r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("order_id = ?", fromOrderID).
		Updates(map[string]any{"order_id": toOrderID, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

func (r *repository) RetableLineItems(ctx context.Context, orderID, fromTableID, toTableID uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("order_id = ? AND table_id = ?", orderID, fromTableID).
		Updates(map[string]any{"table_id": toTableID, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) UpdateLineItemQuantity(ctx context.Context, lineItemID uuid.UUID, quantity int) error {
	return r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ?", lineItemID).
		Updates(map[string]any{"quantity": quantity, "updated_at": time.Now().UTC()}).Error
}

// ReturnedQuantity is the total returned units across the order's lines.
func (r *repository) ReturnedQuantity(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var total int64
	err := r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("order_id = ?", orderID).
		Select("COALESCE(SUM(returned_quantity), 0)").
		Scan(&total).Error
	return total, err
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
	for _, t := range tables {
		out[t.ID] = t
	}
	return out, nil
}

func (r *repository) UpdateTableStatus(ctx context.Context, tableID uuid.UUID, status enums.TableStatus) error {
	return r.DB(ctx).
		Model(&models.DiningTable{}).
		Where("id = ?", tableID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}
