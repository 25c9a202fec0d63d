package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/types"
)

const maxLineQuantity = 99

// Actor identifies the staff member editing the cart.
type Actor struct {
	UserID uuid.UUID
	Role   enums.StaffRole
}

type AddInput struct {
	TableID        uuid.UUID
	MenuItemID     uuid.UUID
	Quantity       int
	Customizations types.Customizations
	Actor          *Actor
}

type UpdateQuantityInput struct {
	TableID    uuid.UUID
	CartItemID uuid.UUID
	Quantity   int
	Actor      *Actor
}

type SubmitInput struct {
	TableID uuid.UUID
	Actor   *Actor
}

// Line is a cart row priced against the current menu.
type Line struct {
	ID             uuid.UUID            `json:"id"`
	MenuItemID     uuid.UUID            `json:"menu_item_id"`
	Name           string               `json:"name"`
	Quantity       int                  `json:"quantity"`
	UnitPrice      decimal.Decimal      `json:"unit_price"`
	LineTotal      decimal.Decimal      `json:"line_total"`
	Available      bool                 `json:"available"`
	Customizations types.Customizations `json:"customizations"`
}

type View struct {
	TableID    uuid.UUID       `json:"table_id"`
	TableName  string          `json:"table_name"`
	Lines      []Line          `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	TotalLabel string          `json:"total_label"`
}

type SubmitResult struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderCreated bool            `json:"order_created"`
	LineItemIDs  []uuid.UUID     `json:"line_item_ids"`
	OrderTotal   decimal.Decimal `json:"order_total"`
}
