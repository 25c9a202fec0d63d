package tables

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Actor identifies the staff member changing a table.
type Actor struct {
	UserID uuid.UUID
	Role   enums.StaffRole
}

// OpenOrder summarizes the order currently seated at a table.
type OpenOrder struct {
	OrderID    uuid.UUID         `json:"order_id"`
	Status     enums.OrderStatus `json:"status"`
	Total      decimal.Decimal   `json:"total"`
	TotalLabel string            `json:"total_label"`
	ItemCount  int               `json:"item_count"`
	OpenedAt   time.Time         `json:"opened_at"`
}

// TableView is one tile of the floor plan.
type TableView struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Seats       int               `json:"seats"`
	Status      enums.TableStatus `json:"status"`
	StatusLabel string            `json:"status_label"`
	OpenOrders  []OpenOrder       `json:"open_orders"`
}

// CreateTableInput captures the fields an admin sets on a new table.
type CreateTableInput struct {
	Name  string
	Seats int
}

type UpdateStatusInput struct {
	TableID uuid.UUID
	To      enums.TableStatus
	Actor   *Actor
}
