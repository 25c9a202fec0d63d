package audit

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

// Handler turns line_item_status_changed envelopes into audit records.
type Handler struct {
	store Store
	now   func() time.Time
	logg  *logger.Logger
}

// NewHandler builds the audit handler.
func NewHandler(store Store, logg *logger.Logger) (*Handler, error) {
	if store == nil {
		return nil, errors.New("audit store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Handler{store: store, now: time.Now, logg: logg}, nil
}

// Supports limits the handler to kitchen status moves.
func (h *Handler) Supports(eventType enums.OutboxEventType) bool {
	return eventType == enums.EventLineItemStatusChanged
}

func (h *Handler) Handle(ctx context.Context, envelope types.Envelope) error {
	if !h.Supports(envelope.EventType) {
		return fmt.Errorf("audit: unsupported event type %s", envelope.EventType)
	}
	var event payloads.LineItemStatusChangedEvent
	if err := envelope.Decode(&event); err != nil {
		return err
	}

	record := toRecord(envelope, event)
	record.RecordedAt = h.now().UTC()

	logCtx := h.logg.WithFields(ctx, map[string]any{
		"line_item_id": record.LineItemID,
		"from":         record.From,
		"to":           record.To,
	})
	if err := h.store.Insert(logCtx, record); err != nil {
		h.logg.Error(logCtx, "failed to store status audit", err)
		return err
	}
	h.logg.Debug(logCtx, "status audit stored")
	return nil
}

func toRecord(envelope types.Envelope, event payloads.LineItemStatusChangedEvent) *StatusRecord {
	changedAt := event.ChangedAt
	if changedAt.IsZero() {
		changedAt = envelope.OccurredAt
	}
	record := &StatusRecord{
		EventID:    envelope.EventID,
		LineItemID: event.LineItemID.String(),
		OrderID:    event.OrderID.String(),
		TableID:    event.TableID.String(),
		MenuItemID: event.MenuItemID.String(),
		Name:       event.Name,
		From:       string(event.From),
		To:         string(event.To),
		Quantity:   event.Quantity,
		Remaining:  event.Remaining,
		ChangedAt:  changedAt.UTC(),
	}
	if event.ActorID != nil {
		record.ActorID = event.ActorID.String()
	}
	if envelope.Actor != nil {
		if record.ActorID == "" {
			record.ActorID = envelope.Actor.UserID.String()
		}
		record.ActorRole = envelope.Actor.Role
	}
	return record
}
