package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateLineItem     OutboxAggregateType = "line_item"
	AggregateTable        OutboxAggregateType = "table"
	AggregateCart         OutboxAggregateType = "cart"
	AggregateMenuItem     OutboxAggregateType = "menu_item"
	AggregateReturnSlip   OutboxAggregateType = "return_slip"
	AggregateCancellation OutboxAggregateType = "cancellation_request"
	AggregateNotification OutboxAggregateType = "kitchen_notification"
	AggregateExpense      OutboxAggregateType = "expense"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateLineItem,
	AggregateTable,
	AggregateCart,
	AggregateMenuItem,
	AggregateReturnSlip,
	AggregateCancellation,
	AggregateNotification,
	AggregateExpense,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated               OutboxEventType = "order_created"
	EventOrderItemsAdded            OutboxEventType = "order_items_added"
	EventOrderStatusChanged         OutboxEventType = "order_status_changed"
	EventOrderPaid                  OutboxEventType = "order_paid"
	EventOrderClosed                OutboxEventType = "order_closed"
	EventOrderCancelled             OutboxEventType = "order_cancelled"
	EventOrderSplit                 OutboxEventType = "order_split"
	EventOrdersMerged               OutboxEventType = "orders_merged"
	EventOrderTransferred           OutboxEventType = "order_transferred"
	EventLineItemStatusChanged      OutboxEventType = "line_item_status_changed"
	EventReturnRequested            OutboxEventType = "return_requested"
	EventReturnApproved             OutboxEventType = "return_approved"
	EventReturnRejected             OutboxEventType = "return_rejected"
	EventCancellationRequested      OutboxEventType = "cancellation_requested"
	EventCancellationResolved       OutboxEventType = "cancellation_resolved"
	EventTableStatusChanged         OutboxEventType = "table_status_changed"
	EventCartChanged                OutboxEventType = "cart_changed"
	EventMenuItemChanged            OutboxEventType = "menu_item_changed"
	EventKitchenNotificationCreated OutboxEventType = "kitchen_notification_created"
	EventExpenseRecorded            OutboxEventType = "expense_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderItemsAdded,
	EventOrderStatusChanged,
	EventOrderPaid,
	EventOrderClosed,
	EventOrderCancelled,
	EventOrderSplit,
	EventOrdersMerged,
	EventOrderTransferred,
	EventLineItemStatusChanged,
	EventReturnRequested,
	EventReturnApproved,
	EventReturnRejected,
	EventCancellationRequested,
	EventCancellationResolved,
	EventTableStatusChanged,
	EventCartChanged,
	EventMenuItemChanged,
	EventKitchenNotificationCreated,
	EventExpenseRecorded,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
