package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItem is a catalog entry. Items that are out of stock or hidden are
// "unavailable": their waiting quantities are not surfaced to the kitchen.
type MenuItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SKU       string          `gorm:"column:sku;not null;uniqueIndex"`
	Name      string          `gorm:"column:name;not null"`
	Category  string          `gorm:"column:category;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(14,2);not null"`
	Cost      decimal.Decimal `gorm:"column:cost;type:numeric(14,2);not null;default:0"`
	InStock   bool            `gorm:"column:in_stock;not null"`
	Hidden    bool            `gorm:"column:hidden;not null;default:false"`
	SortOrder int             `gorm:"column:sort_order;not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (MenuItem) TableName() string { return "menu_items" }

// Available reports whether the item can be prepared right now.
func (m MenuItem) Available() bool {
	return m.InStock && !m.Hidden
}
