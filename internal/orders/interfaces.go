package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/pagination"
)

// Repository defines persistence operations for table orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	List(ctx context.Context, params listOrdersParams) ([]models.Order, *pagination.Cursor, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOpenOrderForTable(ctx context.Context, tableID uuid.UUID) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, at time.Time) (bool, error)
	UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error
	MarkMerged(ctx context.Context, orderID, targetID uuid.UUID, at time.Time) error

	LinkOrderTable(ctx context.Context, orderID, tableID uuid.UUID) error
	UnlinkOrderTable(ctx context.Context, orderID, tableID uuid.UUID) error
	CountOpenOrdersForTable(ctx context.Context, tableID uuid.UUID, exclude uuid.UUID) (int64, error)

	OrderLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	MoveLineItem(ctx context.Context, lineItemID, orderID, tableID uuid.UUID) error
	MoveOrderLineItems(ctx context.Context, fromOrderID, toOrderID uuid.UUID) (int64, error)
	RetableLineItems(ctx context.Context, orderID, fromTableID, toTableID uuid.UUID) error
	UpdateLineItemQuantity(ctx context.Context, lineItemID uuid.UUID, quantity int) error
	ReturnedQuantity(ctx context.Context, orderID uuid.UUID) (int64, error)

	TablesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.DiningTable, error)
	UpdateTableStatus(ctx context.Context, tableID uuid.UUID, status enums.TableStatus) error
}
