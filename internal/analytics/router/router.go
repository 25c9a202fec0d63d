package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/tablepos-backend/internal/analytics/types"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertSalesFact(ctx context.Context, row types.SalesFactRow) error
}

// Handler receives an envelope plus a decoded event payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

type handlerEntry struct {
	factory func() any
	handler Handler
}

// Router dispatches analytics envelopes to the configured handler per event type.
type Router struct {
	handlers map[enums.OutboxEventType]handlerEntry
	logg     *logger.Logger
}

// NewRouter wires the default handlers and allows overrides for specific
// events. Business dates are cut in loc.
func NewRouter(writer Writer, loc *time.Location, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if loc == nil {
		loc = time.UTC
	}

	orderStatus := newOrderStatusHandler(writer, loc, logg)
	statusPayload := func() any { return &payloads.OrderStatusChangedEvent{} }
	entries := map[enums.OutboxEventType]handlerEntry{
		enums.EventOrderPaid:      {factory: statusPayload, handler: orderStatus},
		enums.EventOrderClosed:    {factory: statusPayload, handler: orderStatus},
		enums.EventOrderCancelled: {factory: statusPayload, handler: orderStatus},
		enums.EventReturnApproved: {
			factory: func() any { return &payloads.ReturnSlipEvent{} },
			handler: newReturnApprovedHandler(writer, loc, logg),
		},
		enums.EventExpenseRecorded: {
			factory: func() any { return &payloads.ExpenseRecordedEvent{} },
			handler: newExpenseRecordedHandler(writer, loc, logg),
		},
	}

	for event, custom := range overrides {
		entry, ok := entries[event]
		if !ok || custom == nil {
			continue
		}
		entry.handler = custom
		entries[event] = entry
	}

	return &Router{
		handlers: entries,
		logg:     logg,
	}, nil
}

// Supports reports whether the router has a handler for the event type.
func (r *Router) Supports(eventType enums.OutboxEventType) bool {
	_, ok := r.handlers[eventType]
	return ok
}

// Handle dispatches the incoming envelope to the configured handler.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload := entry.factory()
	if err := envelope.Decode(payload); err != nil {
		return err
	}

	return entry.handler.Handle(ctx, envelope, payload)
}
