package kitchen

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Actor identifies the staff member behind a kitchen action.
type Actor struct {
	UserID uuid.UUID
	Role   enums.StaffRole
}

type BoardFilter struct {
	TableID *uuid.UUID
	Status  *enums.LineItemStatus
}

type TicketView struct {
	Ticket
	Entries []DisplayEntry `json:"entries"`
	Elapsed string         `json:"elapsed"`
	Late    bool           `json:"late"`
}

// BoardView is the kitchen display: tickets oldest first, the per-item
// summary and the per-table breakdown, all from the same rows.
type BoardView struct {
	Tickets     []TicketView  `json:"tickets"`
	Summary     []ItemSummary `json:"summary"`
	Tables      []TableGroup  `json:"tables"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type DetailLine struct {
	Row
	Entries []DisplayEntry `json:"entries"`
	Elapsed string         `json:"elapsed"`
}

// ItemDetail is the kitchen detail view for one menu item name.
type ItemDetail struct {
	Name   string       `json:"name"`
	Counts StatusCounts `json:"counts"`
	Tables []TableGroup `json:"tables"`
	Lines  []DetailLine `json:"lines"`
}

type TransitionInput struct {
	LineItemID uuid.UUID
	To         enums.LineItemStatus
	Actor      *Actor
}

type TransitionResult struct {
	LineItemID uuid.UUID            `json:"line_item_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	From       enums.LineItemStatus `json:"from"`
	To         enums.LineItemStatus `json:"to"`
	Label      string               `json:"label"`
	Color      string               `json:"color"`
}

type CompleteOrderInput struct {
	OrderID uuid.UUID
	Actor   *Actor
}

type CompleteOrderResult struct {
	OrderID        uuid.UUID   `json:"order_id"`
	ServedLineIDs  []uuid.UUID `json:"served_line_item_ids"`
	NotificationID uuid.UUID   `json:"notification_id"`
}

type StartAllInput struct {
	Name  string
	Actor *Actor
}

type StartAllResult struct {
	Name           string      `json:"name"`
	StartedLineIDs []uuid.UUID `json:"started_line_item_ids"`
	Quantity       int         `json:"quantity"`
}
