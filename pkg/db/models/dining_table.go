package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

type DiningTable struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Name      string            `gorm:"column:name;not null;uniqueIndex"`
	Seats     int               `gorm:"column:seats;not null;default:4"`
	Status    enums.TableStatus `gorm:"column:status;not null;default:'empty'"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (DiningTable) TableName() string { return "tables" }
