package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/registry"
)

func TestChangeForSkipsUnwatchedEvents(t *testing.T) {
	event := models.OutboxEvent{ID: uuid.New(), AggregateID: uuid.New()}
	_, ok := changeFor(event, &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: enums.EventExpenseRecorded},
		Payload:    &payloads.ExpenseRecordedEvent{},
	})
	assert.False(t, ok)

	_, ok = changeFor(event, nil)
	assert.False(t, ok)
}

func TestChangeForCartUsesPayloadOp(t *testing.T) {
	tableID := uuid.New()
	itemID := uuid.New()
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := models.OutboxEvent{ID: uuid.New(), AggregateID: tableID}

	change, ok := changeFor(event, &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Watched: enums.WatchedCartItems, Op: enums.ChangeOpUpdate},
		Envelope:   outbox.PayloadEnvelope{EventID: "evt-1", OccurredAt: occurred},
		Payload:    &payloads.CartChangedEvent{TableID: tableID, CartItemID: &itemID, Op: enums.ChangeOpDelete},
	})
	require.True(t, ok)
	assert.Equal(t, "evt-1", change.EventID)
	assert.Equal(t, enums.ChangeOpDelete, change.Op)
	assert.Equal(t, []string{tableID.String()}, change.TableIDs)
	assert.Empty(t, change.OrderID)
	assert.True(t, change.OccurredAt.Equal(occurred))
}

func TestChangeForFallsBackToRowIdentity(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	orderID := uuid.New()
	event := models.OutboxEvent{ID: uuid.New(), AggregateID: uuid.New(), CreatedAt: created}

	change, ok := changeFor(event, &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Watched: enums.WatchedKitchenNotifications, Op: enums.ChangeOpInsert},
		Payload:    &payloads.KitchenNotificationCreatedEvent{OrderID: &orderID, Message: "Bàn 3 chờ lâu"},
	})
	require.True(t, ok)
	assert.Equal(t, event.ID.String(), change.EventID)
	assert.True(t, change.OccurredAt.Equal(created))
	assert.Equal(t, orderID.String(), change.OrderID)
	assert.Empty(t, change.TableIDs)
}

func TestChangeForCarriesReviewStatus(t *testing.T) {
	orderID := uuid.New()
	tables := []uuid.UUID{uuid.New(), uuid.New()}
	event := models.OutboxEvent{ID: uuid.New(), AggregateID: uuid.New()}

	change, ok := changeFor(event, &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Watched: enums.WatchedReturnSlips, Op: enums.ChangeOpUpdate},
		Payload:    &payloads.ReturnSlipEvent{OrderID: orderID, TableIDs: tables, Status: enums.ReviewStatusRejected},
	})
	require.True(t, ok)
	assert.Equal(t, string(enums.ReviewStatusRejected), change.Status)
	assert.Len(t, change.TableIDs, 2)
	assert.Equal(t, event.AggregateID.String(), change.RowID)
}

func TestChangeForScopesEveryOrderOfAMove(t *testing.T) {
	source, target := uuid.New(), uuid.New()
	sourceTable, targetTable := uuid.New(), uuid.New()
	event := models.OutboxEvent{ID: uuid.New(), AggregateID: source}

	split, ok := changeFor(event, &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Watched: enums.WatchedOrderItems, Op: enums.ChangeOpUpdate},
		Payload: &payloads.OrderSplitEvent{
			SourceOrderID: source, TargetOrderID: target,
			TargetTableID: targetTable, SourceTables: []uuid.UUID{sourceTable},
		},
	})
	require.True(t, ok)
	assert.Equal(t, []string{source.String(), target.String()}, split.OrderIDs())
	assert.Equal(t, []string{sourceTable.String(), targetTable.String()}, split.TableIDs)

	merged, ok := changeFor(event, &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Watched: enums.WatchedOrders, Op: enums.ChangeOpUpdate},
		Payload: &payloads.OrdersMergedEvent{
			TargetOrderID: target, SourceOrderIDs: []uuid.UUID{source, target},
		},
	})
	require.True(t, ok)
	assert.Equal(t, []string{target.String(), source.String()}, merged.OrderIDs())
}
