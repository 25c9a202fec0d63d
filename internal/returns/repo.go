package returns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/repo"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/tablepos-backend/pkg/pagination"
)

// Repository exposes return slip and cancellation persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a returns repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
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

// CreateSlip inserts the slip and its items.
func (r *Repository) CreateSlip(ctx context.Context, slip *models.ReturnSlip) error {
	if slip.ID == uuid.Nil {
		slip.ID = uuid.New()
	}
	for i := range slip.Items {
		if slip.Items[i].ID == uuid.Nil {
			slip.Items[i].ID = uuid.New()
		}
		slip.Items[i].SlipID = slip.ID
	}
	return r.DB(ctx).Create(slip).Error
}

func (r *Repository) FindSlip(ctx context.Context, slipID uuid.UUID) (*models.ReturnSlip, error) {
	var slip models.ReturnSlip
	if err := r.DB(ctx).Preload("Items").Where("id = ?", slipID).First(&slip).Error; err != nil {
		return nil, err
	}
	return &slip, nil
}

// ListSlips returns slips newest first using cursor pagination.
func (r *Repository) ListSlips(ctx context.Context, opts listQuery) ([]models.ReturnSlip, error) {
	query := r.DB(ctx).Model(&models.ReturnSlip{})
	if opts.status != nil {
		query = query.Where("status = ?", *opts.status)
	}
	if opts.orderID != nil {
		query = query.Where("order_id = ?", *opts.orderID)
	}

	var rows []models.ReturnSlip
	err := pkgpagination.Keyset(query, "", opts.cursor).Preload("Items").Limit(opts.limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PendingQuantities sums the units already asked for by pending slips of the
// order, keyed by line item.
func (r *Repository) PendingQuantities(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		LineItemID uuid.UUID
		Total      int
	}
	err := r.DB(ctx).
		Table("return_slip_items").
		Select("return_slip_items.line_item_id AS line_item_id, SUM(return_slip_items.quantity) AS total").
		Joins("JOIN return_slips ON return_slips.id = return_slip_items.slip_id").
		Where("return_slips.order_id = ? AND return_slips.status = ?", orderID, enums.ReviewStatusPending).
		Group("return_slip_items.line_item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.LineItemID] = row.Total
	}
	return out, nil
}

// ReviewSlip finalizes a pending slip. The bool reports whether it was still
// pending.
func (r *Repository) ReviewSlip(ctx context.Context, slipID uuid.UUID, status enums.ReviewStatus, reviewer *uuid.UUID, note *string, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.ReturnSlip{}).
		Where("id = ? AND status = ?", slipID, enums.ReviewStatusPending).
		Updates(map[string]any{
			"status":      status,
			"reviewed_by": reviewer,
			"review_note": note,
			"reviewed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementReturned adds qty to the line's returned quantity unless that
// would take remaining below zero.
func (r *Repository) IncrementReturned(ctx context.Context, lineItemID uuid.UUID, qty int) (bool, error) {
	res := r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ? AND quantity - returned_quantity >= ?", lineItemID, qty).
		Updates(map[string]any{
			"returned_quantity": gorm.Expr("returned_quantity + ?", qty),
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReturnAllRemaining marks every unit of the order as returned.
func (r *Repository) ReturnAllRemaining(ctx context.Context, orderID uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.OrderLineItem{}).
		Where("order_id = ? AND returned_quantity < quantity", orderID).
		Updates(map[string]any{
			"returned_quantity": gorm.Expr("quantity"),
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *Repository) OrderLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	if err := r.DB(ctx).Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// LineItemsByIDs loads lines for slip display.
func (r *Repository) LineItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.OrderLineItem, error) {
	out := make(map[uuid.UUID]models.OrderLineItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.OrderLineItem
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (r *Repository) UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"total": total, "updated_at": time.Now().UTC()}).Error
}

// CancelOrder moves a pending order to cancelled. The bool reports whether
// the order was still pending.
func (r *Repository) CancelOrder(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":       enums.OrderStatusCancelled,
			"cancelled_at": at,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) CreateCancellation(ctx context.Context, req *models.CancellationRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	return r.DB(ctx).Create(req).Error
}

func (r *Repository) FindCancellation(ctx context.Context, id uuid.UUID) (*models.CancellationRequest, error) {
	var req models.CancellationRequest
	if err := r.DB(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Repository) HasPendingCancellation(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.CancellationRequest{}).
		Where("order_id = ? AND status = ?", orderID, enums.ReviewStatusPending).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) ListCancellations(ctx context.Context, status *enums.ReviewStatus, limit int) ([]models.CancellationRequest, error) {
	query := r.DB(ctx).Model(&models.CancellationRequest{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var rows []models.CancellationRequest
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) ReviewCancellation(ctx context.Context, id uuid.UUID, status enums.ReviewStatus, reviewer *uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.CancellationRequest{}).
		Where("id = ? AND status = ?", id, enums.ReviewStatusPending).
		Updates(map[string]any{"status": status, "reviewed_by": reviewer, "reviewed_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) TablesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.DiningTable, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tables []models.DiningTable
	if err := r.DB(ctx).Where("id IN ?", ids).Order("name ASC").Find(&tables).Error; err != nil {
		return nil, err
	}
	return tables, nil
}

// CountOtherOpenOrders counts pending or paid orders at the table besides
// exclude.
func (r *Repository) CountOtherOpenOrders(ctx context.Context, tableID, exclude uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.Order{}).
		Joins("JOIN order_tables ON order_tables.order_id = orders.id").
		Where("order_tables.table_id = ? AND orders.id <> ?", tableID, exclude).
		Where("orders.status IN ?", []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusPaid}).
		Count(&count).Error
	return count, err
}

func (r *Repository) UpdateTableStatus(ctx context.Context, tableID uuid.UUID, status enums.TableStatus) error {
	return r.DB(ctx).
		Model(&models.DiningTable{}).
		Where("id = ?", tableID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}
