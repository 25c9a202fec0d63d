package models

import (
	"time"

	"github.com/google/uuid"
)

// KitchenNotification is raised when the kitchen finishes a ticket so the
// floor staff can pick it up.
type KitchenNotification struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    *uuid.UUID `gorm:"column:order_id;type:uuid"`
	TableID    *uuid.UUID `gorm:"column:table_id;type:uuid"`
	TableLabel string     `gorm:"column:table_name;not null"`
	Message    string     `gorm:"column:message;not null"`
	ReadAt     *time.Time `gorm:"column:read_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (KitchenNotification) TableName() string { return "kitchen_notifications" }
