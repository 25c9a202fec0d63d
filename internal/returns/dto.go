package returns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/tablepos-backend/pkg/pagination"
)

// Actor identifies the staff member requesting or reviewing.
type Actor struct {
	UserID uuid.UUID
	Role   enums.StaffRole
}

type RequestItem struct {
	LineItemID uuid.UUID
	Quantity   int
}

type RequestInput struct {
	OrderID uuid.UUID
	Items   []RequestItem
	Reason  string
	Actor   *Actor
}

type ReviewInput struct {
	SlipID uuid.UUID
	Note   string
	Actor  *Actor
}

type CancellationInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   *Actor
}

type ResolveInput struct {
	RequestID uuid.UUID
	Approve   bool
	Actor     *Actor
}

type ListParams struct {
	Status  *enums.ReviewStatus
	OrderID *uuid.UUID
	pkgpagination.Params
}

type SlipItem struct {
	LineItemID uuid.UUID       `json:"line_item_id"`
	Name       string          `json:"name,omitempty"`
	Quantity   int             `json:"quantity"`
	Value      decimal.Decimal `json:"value"`
}

type Slip struct {
	ID          uuid.UUID          `json:"id"`
	OrderID     uuid.UUID          `json:"order_id"`
	Status      enums.ReviewStatus `json:"status"`
	Reason      string             `json:"reason"`
	Items       []SlipItem         `json:"items"`
	ReturnValue decimal.Decimal    `json:"return_value"`
	ReviewNote  *string            `json:"review_note,omitempty"`
	ReviewedAt  *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

type SlipList struct {
	Items  []Slip `json:"items"`
	Cursor string `json:"cursor"`
}

// ApproveResult reports the slip together with the order total after the
// returned units stopped counting.
type ApproveResult struct {
	Slip       Slip            `json:"slip"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

type Cancellation struct {
	ID         uuid.UUID          `json:"id"`
	OrderID    uuid.UUID          `json:"order_id"`
	Status     enums.ReviewStatus `json:"status"`
	Reason     string             `json:"reason"`
	ReviewedAt *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

type listQuery struct {
	status  *enums.ReviewStatus
	orderID *uuid.UUID
	limit   int
	cursor  *pkgpagination.Cursor
}

func toSlip(m models.ReturnSlip, lines map[uuid.UUID]models.OrderLineItem) Slip {
	out := Slip{
		ID:          m.ID,
		OrderID:     m.OrderID,
		Status:      m.Status,
		Reason:      m.Reason,
		Items:       make([]SlipItem, 0, len(m.Items)),
		ReturnValue: decimal.Zero,
		ReviewNote:  m.ReviewNote,
		ReviewedAt:  m.ReviewedAt,
		CreatedAt:   m.CreatedAt,
	}
	for _, item := range m.Items {
		line := lines[item.LineItemID]
		value := line.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		out.Items = append(out.Items, SlipItem{
			LineItemID: item.LineItemID,
			Name:       line.Name,
			Quantity:   item.Quantity,
			Value:      value,
		})
		out.ReturnValue = out.ReturnValue.Add(value)
	}
	return out
}

func toCancellation(m models.CancellationRequest) Cancellation {
	return Cancellation{
		ID:         m.ID,
		OrderID:    m.OrderID,
		Status:     m.Status,
		Reason:     m.Reason,
		ReviewedAt: m.ReviewedAt,
		CreatedAt:  m.CreatedAt,
	}
}
