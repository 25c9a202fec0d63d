package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Scoped is implemented by payloads that touch a specific order or set of
// tables. The publisher uses it to address change notifications.
type Scoped interface {
	ChangeScope() (orderID *uuid.UUID, tableIDs []uuid.UUID)
}

// MultiOrder is implemented by payloads that move lines between orders.
// RelatedOrders lists the orders other than the one ChangeScope returns.
type MultiOrder interface {
	RelatedOrders() []uuid.UUID
}

// OrderItemsEvent covers order_created and order_items_added: a cart was
// sent to the kitchen.
type OrderItemsEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	TableID     uuid.UUID       `json:"table_id"`
	TableName   string          `json:"table_name"`
	LineItemIDs []uuid.UUID     `json:"line_item_ids"`
	ItemCount   int             `json:"item_count"`
	OrderTotal  decimal.Decimal `json:"order_total"`
}

func (e OrderItemsEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.OrderID, []uuid.UUID{e.TableID}
}

// OrderStatusChangedEvent covers every order status move. Paid and closed
// transitions feed the sales facts.
type OrderStatusChangedEvent struct {
	OrderID          uuid.UUID         `json:"order_id"`
	TableIDs         []uuid.UUID       `json:"table_ids"`
	From             enums.OrderStatus `json:"from"`
	To               enums.OrderStatus `json:"to"`
	Total            decimal.Decimal   `json:"total"`
	CostTotal        decimal.Decimal   `json:"cost_total"`
	ItemCount        int               `json:"item_count"`
	ReturnedQuantity int               `json:"returned_quantity"`
	OpenedAt         time.Time         `json:"opened_at"`
	ChangedAt        time.Time         `json:"changed_at"`
}

func (e OrderStatusChangedEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.OrderID, e.TableIDs
}

type OrderSplitEvent struct {
	SourceOrderID uuid.UUID   `json:"source_order_id"`
	TargetOrderID uuid.UUID   `json:"target_order_id"`
	TargetTableID uuid.UUID   `json:"target_table_id"`
	SourceTables  []uuid.UUID `json:"source_table_ids"`
	LineItemIDs   []uuid.UUID `json:"line_item_ids"`
}

func (e OrderSplitEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.SourceOrderID, append(append([]uuid.UUID{}, e.SourceTables...), e.TargetTableID)
}

func (e OrderSplitEvent) RelatedOrders() []uuid.UUID {
	return []uuid.UUID{e.TargetOrderID}
}

type OrdersMergedEvent struct {
	TargetOrderID  uuid.UUID   `json:"target_order_id"`
	SourceOrderIDs []uuid.UUID `json:"source_order_ids"`
	TableIDs       []uuid.UUID `json:"table_ids"`
}

func (e OrdersMergedEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.TargetOrderID, e.TableIDs
}

func (e OrdersMergedEvent) RelatedOrders() []uuid.UUID {
	return e.SourceOrderIDs
}

type OrderTransferredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	FromTableID uuid.UUID `json:"from_table_id"`
	ToTableID   uuid.UUID `json:"to_table_id"`
}

func (e OrderTransferredEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.OrderID, []uuid.UUID{e.FromTableID, e.ToTableID}
}

// LineItemStatusChangedEvent is emitted for every kitchen status move and
// feeds the status audit trail.
type LineItemStatusChangedEvent struct {
	LineItemID uuid.UUID            `json:"line_item_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	TableID    uuid.UUID            `json:"table_id"`
	MenuItemID uuid.UUID            `json:"menu_item_id"`
	Name       string               `json:"name"`
	From       enums.LineItemStatus `json:"from"`
	To         enums.LineItemStatus `json:"to"`
	Quantity   int                  `json:"quantity"`
	Remaining  int                  `json:"remaining"`
	ActorID    *uuid.UUID           `json:"actor_id,omitempty"`
	ChangedAt  time.Time            `json:"changed_at"`
}

func (e LineItemStatusChangedEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.OrderID, []uuid.UUID{e.TableID}
}

type ReturnedLine struct {
	LineItemID uuid.UUID `json:"line_item_id"`
	Quantity   int       `json:"quantity"`
}

type ReturnSlipEvent struct {
	SlipID      uuid.UUID          `json:"slip_id"`
	OrderID     uuid.UUID          `json:"order_id"`
	TableIDs    []uuid.UUID        `json:"table_ids"`
	Status      enums.ReviewStatus `json:"status"`
	Reason      string             `json:"reason"`
	Items       []ReturnedLine     `json:"items"`
	ReturnValue decimal.Decimal    `json:"return_value"`
}

func (e ReturnSlipEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.OrderID, e.TableIDs
}

type CancellationEvent struct {
	RequestID uuid.UUID          `json:"request_id"`
	OrderID   uuid.UUID          `json:"order_id"`
	TableIDs  []uuid.UUID        `json:"table_ids"`
	Status    enums.ReviewStatus `json:"status"`
	Reason    string             `json:"reason"`
}

func (e CancellationEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return &e.OrderID, e.TableIDs
}

type TableStatusChangedEvent struct {
	TableID uuid.UUID         `json:"table_id"`
	Name    string            `json:"name"`
	From    enums.TableStatus `json:"from"`
	To      enums.TableStatus `json:"to"`
}

func (e TableStatusChangedEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return nil, []uuid.UUID{e.TableID}
}

type CartChangedEvent struct {
	TableID    uuid.UUID      `json:"table_id"`
	CartItemID *uuid.UUID     `json:"cart_item_id,omitempty"`
	Op         enums.ChangeOp `json:"op"`
}

func (e CartChangedEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	return nil, []uuid.UUID{e.TableID}
}

type MenuItemChangedEvent struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	SKU        string          `json:"sku"`
	InStock    bool            `json:"in_stock"`
	Hidden     bool            `json:"hidden"`
	Price      decimal.Decimal `json:"price"`
}

type KitchenNotificationCreatedEvent struct {
	NotificationID uuid.UUID  `json:"notification_id"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	TableID        *uuid.UUID `json:"table_id,omitempty"`
	TableName      string     `json:"table_name"`
	Message        string     `json:"message"`
}

func (e KitchenNotificationCreatedEvent) ChangeScope() (*uuid.UUID, []uuid.UUID) {
	if e.TableID == nil {
		return e.OrderID, nil
	}
	return e.OrderID, []uuid.UUID{*e.TableID}
}

type ExpenseRecordedEvent struct {
	ExpenseID uuid.UUID             `json:"expense_id"`
	Category  enums.ExpenseCategory `json:"category"`
	Amount    decimal.Decimal       `json:"amount"`
	SpentAt   time.Time             `json:"spent_at"`
}
