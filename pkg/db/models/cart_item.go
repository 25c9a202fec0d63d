package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/types"
)

// CartItem is a staging row for a table, promoted to order items when the
// cart is sent to the kitchen.
type CartItem struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	TableID        uuid.UUID            `gorm:"column:table_id;type:uuid;not null"`
	MenuItemID     uuid.UUID            `gorm:"column:menu_item_id;type:uuid;not null"`
	Quantity       int                  `gorm:"column:quantity;not null"`
	Customizations types.Customizations `gorm:"column:customizations;type:jsonb"`
	AddedBy        *uuid.UUID           `gorm:"column:added_by;type:uuid"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartItem) TableName() string { return "cart_items" }
