package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

type Expense struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Category    enums.ExpenseCategory `gorm:"column:category;not null"`
	Amount      decimal.Decimal       `gorm:"column:amount;type:numeric(14,2);not null"`
	Description string                `gorm:"column:description;not null"`
	SpentAt     time.Time             `gorm:"column:spent_at;not null"`
	CreatedBy   *uuid.UUID            `gorm:"column:created_by;type:uuid"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (Expense) TableName() string { return "expenses" }
