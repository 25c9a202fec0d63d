package registry

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
// Watched and Op are empty for events that never reach the screens.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	Watched        enums.WatchedTable
	Op             enums.ChangeOp
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// ErrUnknownEvent is wrapped by Resolve when no descriptor is registered for
// the row's event type.
var ErrUnknownEvent = errors.New("unsupported event type")

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry. Every POS event goes to the single
// domain topic; descriptors with a watched table also fan out as change
// notifications.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.DomainTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventOrderCreated,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrderItems,
			Op:             enums.ChangeOpInsert,
			PayloadFactory: func() interface{} { return &payloads.OrderItemsEvent{} },
		},
		{
			EventType:      enums.EventOrderItemsAdded,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrderItems,
			Op:             enums.ChangeOpInsert,
			PayloadFactory: func() interface{} { return &payloads.OrderItemsEvent{} },
		},
		{
			EventType:      enums.EventOrderStatusChanged,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrders,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.OrderStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventOrderPaid,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrders,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.OrderStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventOrderClosed,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrders,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.OrderStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventOrderCancelled,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrders,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.OrderStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventOrderSplit,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrderItems,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.OrderSplitEvent{} },
		},
		{
			EventType:      enums.EventOrdersMerged,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrders,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.OrdersMergedEvent{} },
		},
		{
			EventType:      enums.EventOrderTransferred,
			AggregateType:  enums.AggregateOrder,
			Watched:        enums.WatchedOrders,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.OrderTransferredEvent{} },
		},
		{
			EventType:      enums.EventLineItemStatusChanged,
			AggregateType:  enums.AggregateLineItem,
			Watched:        enums.WatchedOrderItems,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.LineItemStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventReturnRequested,
			AggregateType:  enums.AggregateReturnSlip,
			Watched:        enums.WatchedReturnSlips,
			Op:             enums.ChangeOpInsert,
			PayloadFactory: func() interface{} { return &payloads.ReturnSlipEvent{} },
		},
		{
			EventType:      enums.EventReturnApproved,
			AggregateType:  enums.AggregateReturnSlip,
			Watched:        enums.WatchedOrderItems,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.ReturnSlipEvent{} },
		},
		{
			EventType:      enums.EventReturnRejected,
			AggregateType:  enums.AggregateReturnSlip,
			Watched:        enums.WatchedReturnSlips,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.ReturnSlipEvent{} },
		},
		{
			EventType:      enums.EventCancellationRequested,
			AggregateType:  enums.AggregateCancellation,
			Watched:        enums.WatchedCancellationRequests,
			Op:             enums.ChangeOpInsert,
			PayloadFactory: func() interface{} { return &payloads.CancellationEvent{} },
		},
		{
			EventType:      enums.EventCancellationResolved,
			AggregateType:  enums.AggregateCancellation,
			Watched:        enums.WatchedCancellationRequests,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.CancellationEvent{} },
		},
		{
			EventType:      enums.EventTableStatusChanged,
			AggregateType:  enums.AggregateTable,
			Watched:        enums.WatchedTables,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.TableStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventCartChanged,
			AggregateType:  enums.AggregateCart,
			Watched:        enums.WatchedCartItems,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.CartChangedEvent{} },
		},
		{
			EventType:      enums.EventMenuItemChanged,
			AggregateType:  enums.AggregateMenuItem,
			Watched:        enums.WatchedMenuItems,
			Op:             enums.ChangeOpUpdate,
			PayloadFactory: func() interface{} { return &payloads.MenuItemChangedEvent{} },
		},
		{
			EventType:      enums.EventKitchenNotificationCreated,
			AggregateType:  enums.AggregateNotification,
			Watched:        enums.WatchedKitchenNotifications,
			Op:             enums.ChangeOpInsert,
			PayloadFactory: func() interface{} { return &payloads.KitchenNotificationCreatedEvent{} },
		},
		{
			EventType:      enums.EventExpenseRecorded,
			AggregateType:  enums.AggregateExpense,
			PayloadFactory: func() interface{} { return &payloads.ExpenseRecordedEvent{} },
		},
	} {
		desc.Topic = topic
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("%w %s", ErrUnknownEvent, event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := envelope.DecodeData(payload); err != nil {
		if errors.Is(err, outbox.ErrNoData) {
			return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
		}
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// Descriptor returns the descriptor registered for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
