package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Repository defines persistence for the per-table cart and the order rows
// it is promoted into.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListByTable(ctx context.Context, tableID uuid.UUID) ([]models.CartItem, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) (bool, error)
	DeleteByTable(ctx context.Context, tableID uuid.UUID) (int64, error)
	StaleTables(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	FindTable(ctx context.Context, tableID uuid.UUID) (*models.DiningTable, error)
	UpdateTableStatus(ctx context.Context, tableID uuid.UUID, status enums.TableStatus) error
	MenuItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)

	FindOpenOrderForTable(ctx context.Context, tableID uuid.UUID) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	LinkOrderTable(ctx context.Context, orderID, tableID uuid.UUID) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	OrderLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error)
	UpdateOrderTotal(ctx context.Context, orderID uuid.UUID, total decimal.Decimal) error
}
