package main

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/registry"
	"github.com/angelmondragon/tablepos-backend/pkg/realtime"
)

// changeFor maps a resolved outbox row onto the notification the screens
// listen for. Events without a watched table yield false.
func changeFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) (realtime.Change, bool) {
	if resolved == nil || resolved.Descriptor.Watched == "" {
		return realtime.Change{}, false
	}

	change := realtime.Change{
		EventID:    resolved.Envelope.EventID,
		Table:      resolved.Descriptor.Watched,
		Op:         resolved.Descriptor.Op,
		RowID:      event.AggregateID.String(),
		Status:     payloadStatus(resolved.Payload),
		OccurredAt: resolved.Envelope.OccurredAt,
	}
	if cart, ok := resolved.Payload.(*payloads.CartChangedEvent); ok && cart.Op.IsValid() {
		change.Op = cart.Op
	}
	if change.EventID == "" {
		change.EventID = event.ID.String()
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = event.CreatedAt
	}

	if scoped, ok := resolved.Payload.(payloads.Scoped); ok {
		orderID, tableIDs := scoped.ChangeScope()
		if orderID != nil && *orderID != uuid.Nil {
			change.OrderID = orderID.String()
		}
		for _, id := range tableIDs {
			if id != uuid.Nil {
				change.TableIDs = append(change.TableIDs, id.String())
			}
		}
	}

	if multi, ok := resolved.Payload.(payloads.MultiOrder); ok {
		for _, id := range multi.RelatedOrders() {
			if id != uuid.Nil && id.String() != change.OrderID {
				change.RelatedOrderIDs = append(change.RelatedOrderIDs, id.String())
			}
		}
	}

	if err := change.Validate(); err != nil {
		return realtime.Change{}, false
	}
	return change, true
}

func payloadStatus(payload interface{}) string {
	switch p := payload.(type) {
	case *payloads.OrderStatusChangedEvent:
		return string(p.To)
	case *payloads.LineItemStatusChangedEvent:
		return string(p.To)
	case *payloads.TableStatusChangedEvent:
		return string(p.To)
	case *payloads.ReturnSlipEvent:
		return string(p.Status)
	case *payloads.CancellationEvent:
		return string(p.Status)
	default:
		return ""
	}
}
