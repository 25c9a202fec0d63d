package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/pagination"
	"github.com/angelmondragon/tablepos-backend/pkg/types"
)

// Actor identifies the staff member changing an order.
type Actor struct {
	UserID uuid.UUID
	Role   enums.StaffRole
}

// ListFilters describe the inputs supported by the admin orders list.
type ListFilters struct {
	Status   *enums.OrderStatus
	TableID  *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
}

type listOrdersParams struct {
	ListFilters
	Limit  int
	Cursor *pagination.Cursor
}

// TableRef is the table summary embedded in order payloads.
type TableRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// OrderSummary exposes the aggregated fields returned in the orders list.
type OrderSummary struct {
	ID         uuid.UUID         `json:"id"`
	Status     enums.OrderStatus `json:"status"`
	Tables     []TableRef        `json:"tables"`
	Total      decimal.Decimal   `json:"total"`
	TotalLabel string            `json:"total_label"`
	ItemCount  int               `json:"item_count"`
	CreatedAt  time.Time         `json:"created_at"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// LineDetail is one order line with its billable remainder.
type LineDetail struct {
	ID               uuid.UUID            `json:"id"`
	MenuItemID       uuid.UUID            `json:"menu_item_id"`
	TableID          uuid.UUID            `json:"table_id"`
	Name             string               `json:"name"`
	Quantity         int                  `json:"quantity"`
	ReturnedQuantity int                  `json:"returned_quantity"`
	Remaining        int                  `json:"remaining"`
	UnitPrice        decimal.Decimal      `json:"unit_price"`
	LineTotal        decimal.Decimal      `json:"line_total"`
	Status           enums.LineItemStatus `json:"status"`
	StatusLabel      string               `json:"status_label"`
	Customizations   types.Customizations `json:"customizations"`
}

// OrderDetail is the order screen payload. Total is recomputed from the
// lines and matches the stored total once every write has gone through.
type OrderDetail struct {
	ID               uuid.UUID         `json:"id"`
	Status           enums.OrderStatus `json:"status"`
	Tables           []TableRef        `json:"tables"`
	Lines            []LineDetail      `json:"lines"`
	Total            decimal.Decimal   `json:"total"`
	TotalLabel       string            `json:"total_label"`
	ReturnedQuantity int               `json:"returned_quantity"`
	Note             *string           `json:"note,omitempty"`
	MergedInto       *uuid.UUID        `json:"merged_into,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	ClosedAt         *time.Time        `json:"closed_at,omitempty"`
}

type UpdateStatusInput struct {
	OrderID uuid.UUID
	To      enums.OrderStatus
	Actor   *Actor
}

type StatusResult struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
	Total   decimal.Decimal   `json:"total"`
}

// SplitItem moves Quantity units of a line to the target table.
type SplitItem struct {
	LineItemID uuid.UUID
	Quantity   int
}

type SplitInput struct {
	OrderID       uuid.UUID
	TargetTableID uuid.UUID
	Items         []SplitItem
	Actor         *Actor
}

type SplitResult struct {
	SourceOrderID uuid.UUID       `json:"source_order_id"`
	TargetOrderID uuid.UUID       `json:"target_order_id"`
	TargetCreated bool            `json:"target_created"`
	LineItemIDs   []uuid.UUID     `json:"line_item_ids"`
	SourceTotal   decimal.Decimal `json:"source_total"`
	TargetTotal   decimal.Decimal `json:"target_total"`
}

type MergeInput struct {
	TargetOrderID  uuid.UUID
	SourceOrderIDs []uuid.UUID
	Actor          *Actor
}

type MergeResult struct {
	OrderID  uuid.UUID       `json:"order_id"`
	TableIDs []uuid.UUID     `json:"table_ids"`
	Moved    int64           `json:"moved_line_items"`
	Total    decimal.Decimal `json:"total"`
}

// TransferInput moves an order from one table to another. FromTableID may
// be omitted when the order sits on a single table.
type TransferInput struct {
	OrderID     uuid.UUID
	FromTableID uuid.UUID
	ToTableID   uuid.UUID
	Actor       *Actor
}

type TransferResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	FromTableID uuid.UUID `json:"from_table_id"`
	ToTableID   uuid.UUID `json:"to_table_id"`
}
