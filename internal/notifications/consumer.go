package notifications

import (
	"context"
	"fmt"
	"sort"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

const staffAlertConsumer = "staff-alerts"

type alertRepository interface {
	Create(ctx context.Context, notification *models.KitchenNotification) error
	TableNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type processedTracker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns return and cancellation requests into notifications so the
// cashier sees them without watching the order screens.
type Consumer struct {
	repo         alertRepository
	subscription *pubsub.Subscriber
	idempotency  processedTracker
	logg         *logger.Logger
}

// NewConsumer builds a staff alert consumer.
func NewConsumer(repo alertRepository, subscription *pubsub.Subscriber, manager processedTracker, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID, eventType string, data []byte) processResult {
	fields := map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	kind := enums.OutboxEventType(eventType)
	if kind != enums.EventReturnRequested && kind != enums.EventCancellationRequested {
		c.logg.Debug(logCtx, "skipping event")
		return processResult{ack: true}
	}

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	claimed, err := c.idempotency.Claim(ctx, staffAlertConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	var notification *models.KitchenNotification
	switch kind {
	case enums.EventReturnRequested:
		var payload payloads.ReturnSlipEvent
		if err = envelope.DecodeData(&payload); err == nil {
			notification, err = c.returnAlert(ctx, payload)
		}
	case enums.EventCancellationRequested:
		var payload payloads.CancellationEvent
		if err = envelope.DecodeData(&payload); err == nil {
			notification, err = c.cancellationAlert(ctx, payload)
		}
	}
	if err == nil {
		err = c.repo.Create(ctx, notification)
	}
	if err != nil {
		c.logg.Error(logCtx, "staff alert failed", err)
		_ = c.idempotency.Release(ctx, staffAlertConsumer, eventID)
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithOrderID(logCtx, notification.OrderID.String()), "staff alert created")
	return processResult{ack: true}
}

func (c *Consumer) returnAlert(ctx context.Context, payload payloads.ReturnSlipEvent) (*models.KitchenNotification, error) {
	if payload.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id missing")
	}
	names, err := c.tableNames(ctx, payload.TableIDs)
	if err != nil {
		return nil, err
	}
	qty := 0
	for _, item := range payload.Items {
		qty += item.Quantity
	}
	message := withReason(fmt.Sprintf("%s: yêu cầu trả %d món", names, qty), payload.Reason)
	return newAlert(payload.OrderID, payload.TableIDs, names, message), nil
}

func (c *Consumer) cancellationAlert(ctx context.Context, payload payloads.CancellationEvent) (*models.KitchenNotification, error) {
	if payload.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id missing")
	}
	names, err := c.tableNames(ctx, payload.TableIDs)
	if err != nil {
		return nil, err
	}
	message := withReason(fmt.Sprintf("%s: yêu cầu huỷ đơn", names), payload.Reason)
	return newAlert(payload.OrderID, payload.TableIDs, names, message), nil
}

func (c *Consumer) tableNames(ctx context.Context, ids []uuid.UUID) (string, error) {
	byID, err := c.repo.TableNames(ctx, ids)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(byID))
	for _, name := range byID {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "Mang đi", nil
	}
	return strings.Join(names, ", "), nil
}

func newAlert(orderID uuid.UUID, tableIDs []uuid.UUID, tableNames, message string) *models.KitchenNotification {
	n := &models.KitchenNotification{
		ID:         uuid.New(),
		OrderID:    &orderID,
		TableLabel: tableNames,
		Message:    message,
	}
	if len(tableIDs) > 0 {
		tableID := tableIDs[0]
		n.TableID = &tableID
	}
	return n
}

func withReason(message, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return message
	}
	return fmt.Sprintf("%s (lý do: %s)", message, reason)
}
