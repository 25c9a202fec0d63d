package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Order is a table order. Grouped (merged) orders reference several tables
// through OrderTable.
type Order struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Status      enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	Total       decimal.Decimal   `gorm:"column:total;type:numeric(14,2);not null;default:0"`
	Note        *string           `gorm:"column:note"`
	CreatedBy   *uuid.UUID        `gorm:"column:created_by;type:uuid"`
	MergedInto  *uuid.UUID        `gorm:"column:merged_into;type:uuid"`
	PaidAt      *time.Time        `gorm:"column:paid_at"`
	ClosedAt    *time.Time        `gorm:"column:closed_at"`
	CancelledAt *time.Time        `gorm:"column:cancelled_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Items  []OrderLineItem `gorm:"foreignKey:OrderID"`
	Tables []OrderTable    `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

// OrderTable links an order to the tables it serves.
type OrderTable struct {
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	TableID   uuid.UUID `gorm:"column:table_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderTable) TableName() string { return "order_tables" }
