package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// ReturnSlip records items taken back after kitchen submission.
type ReturnSlip struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	Status      enums.ReviewStatus `gorm:"column:status;not null;default:'pending'"`
	Reason      string             `gorm:"column:reason;not null"`
	RequestedBy *uuid.UUID         `gorm:"column:requested_by;type:uuid"`
	ReviewedBy  *uuid.UUID         `gorm:"column:reviewed_by;type:uuid"`
	ReviewNote  *string            `gorm:"column:review_note"`
	ReviewedAt  *time.Time         `gorm:"column:reviewed_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`

	Items []ReturnSlipItem `gorm:"foreignKey:SlipID"`
}

func (ReturnSlip) TableName() string { return "return_slips" }

type ReturnSlipItem struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SlipID     uuid.UUID `gorm:"column:slip_id;type:uuid;not null"`
	LineItemID uuid.UUID `gorm:"column:line_item_id;type:uuid;not null"`
	Quantity   int       `gorm:"column:quantity;not null"`
}

func (ReturnSlipItem) TableName() string { return "return_slip_items" }

// CancellationRequest asks to void a whole order after kitchen submission.
type CancellationRequest struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	Status      enums.ReviewStatus `gorm:"column:status;not null;default:'pending'"`
	Reason      string             `gorm:"column:reason;not null"`
	RequestedBy *uuid.UUID         `gorm:"column:requested_by;type:uuid"`
	ReviewedBy  *uuid.UUID         `gorm:"column:reviewed_by;type:uuid"`
	ReviewedAt  *time.Time         `gorm:"column:reviewed_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (CancellationRequest) TableName() string { return "cancellation_requests" }
