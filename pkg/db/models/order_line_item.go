package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/types"
)

// OrderLineItem is a kitchen ticket line. Name, price and cost are snapshots
// of the menu item at submission time.
type OrderLineItem struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	TableID          uuid.UUID            `gorm:"column:table_id;type:uuid;not null"`
	MenuItemID       uuid.UUID            `gorm:"column:menu_item_id;type:uuid;not null"`
	Name             string               `gorm:"column:name;not null"`
	UnitPrice        decimal.Decimal      `gorm:"column:unit_price;type:numeric(14,2);not null"`
	UnitCost         decimal.Decimal      `gorm:"column:unit_cost;type:numeric(14,2);not null;default:0"`
	Quantity         int                  `gorm:"column:quantity;not null"`
	ReturnedQuantity int                  `gorm:"column:returned_quantity;not null;default:0"`
	Status           enums.LineItemStatus `gorm:"column:status;not null;default:'waiting'"`
	Customizations   types.Customizations `gorm:"column:customizations;type:jsonb"`
	StartedAt        *time.Time           `gorm:"column:started_at"`
	CompletedAt      *time.Time           `gorm:"column:completed_at"`
	ServedAt         *time.Time           `gorm:"column:served_at"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (OrderLineItem) TableName() string { return "order_items" }

// Remaining is quantity minus returned quantity, never negative.
func (li OrderLineItem) Remaining() int {
	if r := li.Quantity - li.ReturnedQuantity; r > 0 {
		return r
	}
	return 0
}

// LineTotal is the billable value of the non-returned quantity.
func (li OrderLineItem) LineTotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Remaining())))
}
