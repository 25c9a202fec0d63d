package menu

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/money"
)

// Actor identifies the staff member editing the menu.
type Actor struct {
	UserID uuid.UUID
	Role   enums.StaffRole
}

// MenuItemView is the menu entry returned to the ordering screens.
type MenuItemView struct {
	ID         uuid.UUID       `json:"id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Price      decimal.Decimal `json:"price"`
	PriceLabel string          `json:"price_label"`
	Cost       decimal.Decimal `json:"cost"`
	InStock    bool            `json:"in_stock"`
	Hidden     bool            `json:"hidden"`
	Available  bool            `json:"available"`
	SortOrder  int             `json:"sort_order"`
}

// AvailabilityInput flips the stock or visibility flags. Nil fields are left
// untouched.
type AvailabilityInput struct {
	MenuItemID uuid.UUID
	InStock    *bool
	Hidden     *bool
	Actor      *Actor
}

// UpsertInput creates or updates a menu item keyed by SKU.
type UpsertInput struct {
	SKU       string
	Name      string
	Category  string
	Price     decimal.Decimal
	Cost      decimal.Decimal
	InStock   *bool
	Hidden    *bool
	SortOrder int
}

// UpsertResult reports the stored item and whether it was new.
type UpsertResult struct {
	Item    MenuItemView `json:"item"`
	Created bool         `json:"created"`
}

func toView(item models.MenuItem) MenuItemView {
	return MenuItemView{
		ID:         item.ID,
		SKU:        item.SKU,
		Name:       item.Name,
		Category:   item.Category,
		Price:      item.Price,
		PriceLabel: money.FormatVND(item.Price),
		Cost:       item.Cost,
		InStock:    item.InStock,
		Hidden:     item.Hidden,
		Available:  item.Available(),
		SortOrder:  item.SortOrder,
	}
}
