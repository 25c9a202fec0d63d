package kitchen

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/repo/repotest"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/types"
)

type kitchenFixture struct {
	db       *gorm.DB
	table    models.DiningTable
	milkTea  models.MenuItem
	smoothie models.MenuItem
}

func newKitchenFixture(t *testing.T) *kitchenFixture {
	t.Helper()
	db := repotest.OpenDB(t)

	f := &kitchenFixture{
		db:    db,
		table: models.DiningTable{ID: uuid.New(), Name: "Bàn 1", Seats: 4, Status: enums.TableStatusServing},
		milkTea: models.MenuItem{
			ID: uuid.New(), SKU: "TS-01", Name: "Trà Sữa", Category: "drinks",
			Price: decimal.NewFromInt(45000), InStock: true,
		},
		smoothie: models.MenuItem{
			ID: uuid.New(), SKU: "ST-01", Name: "Sinh Tố Bơ", Category: "drinks",
			Price: decimal.NewFromInt(55000), InStock: false,
		},
	}
	require.NoError(t, db.Create(&f.table).Error)
	require.NoError(t, db.Create(&f.milkTea).Error)
	// in_stock=false would be dropped by gorm's zero-value default handling
	require.NoError(t, db.Create(&f.smoothie).Error)
	require.NoError(t, db.Model(&models.MenuItem{}).Where("id = ?", f.smoothie.ID).Update("in_stock", false).Error)
	return f
}

func (f *kitchenFixture) order(t *testing.T, status enums.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{ID: uuid.New(), Status: status}
	require.NoError(t, f.db.Create(&order).Error)
	require.NoError(t, f.db.Create(&models.OrderTable{OrderID: order.ID, TableID: f.table.ID}).Error)
	return order
}

func (f *kitchenFixture) line(t *testing.T, order models.Order, item models.MenuItem, qty, returned int, status enums.LineItemStatus) models.OrderLineItem {
	t.Helper()
	line := models.OrderLineItem{
		ID:               uuid.New(),
		OrderID:          order.ID,
		TableID:          f.table.ID,
		MenuItemID:       item.ID,
		Name:             item.Name,
		UnitPrice:        item.Price,
		Quantity:         qty,
		ReturnedQuantity: returned,
		Status:           status,
		Customizations:   types.Customizations{Size: "L"},
	}
	require.NoError(t, f.db.Create(&line).Error)
	return line
}

func TestRepositoryActiveOrderIDs(t *testing.T) {
	f := newKitchenFixture(t)
	r := NewRepository(f.db)

	open := f.order(t, enums.OrderStatusPending)
	f.line(t, open, f.milkTea, 2, 0, enums.LineItemStatusWaiting)
	f.line(t, open, f.milkTea, 1, 0, enums.LineItemStatusInProgress)

	paid := f.order(t, enums.OrderStatusPaid)
	f.line(t, paid, f.milkTea, 1, 0, enums.LineItemStatusCompleted)

	servedOnly := f.order(t, enums.OrderStatusPending)
	f.line(t, servedOnly, f.milkTea, 1, 0, enums.LineItemStatusServed)

	returned := f.order(t, enums.OrderStatusPending)
	f.line(t, returned, f.milkTea, 2, 2, enums.LineItemStatusWaiting)

	closed := f.order(t, enums.OrderStatusClosed)
	f.line(t, closed, f.milkTea, 1, 0, enums.LineItemStatusWaiting)

	ids, err := r.ActiveOrderIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{open.ID, paid.ID}, ids)
}

func TestRepositoryLineItemsByOrders(t *testing.T) {
	f := newKitchenFixture(t)
	r := NewRepository(f.db)

	order := f.order(t, enums.OrderStatusPending)
	first := f.line(t, order, f.milkTea, 2, 0, enums.LineItemStatusWaiting)
	f.line(t, order, f.smoothie, 1, 0, enums.LineItemStatusInProgress)
	empty := uuid.New()

	got, err := r.LineItemsByOrders(context.Background(), []uuid.UUID{order.ID, empty})
	require.NoError(t, err)
	require.Len(t, got[order.ID], 2)
	assert.Empty(t, got[empty])
	_, present := got[empty]
	assert.True(t, present, "requested orders without lines map to an empty slice")

	var loaded models.OrderLineItem
	for _, line := range got[order.ID] {
		if line.ID == first.ID {
			loaded = line
		}
	}
	assert.Equal(t, "L", loaded.Customizations.Size)
	assert.True(t, loaded.UnitPrice.Equal(decimal.NewFromInt(45000)))
}

func TestRepositoryMenuAndTablesByIDs(t *testing.T) {
	f := newKitchenFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	menu, err := r.MenuItemsByIDs(ctx, []uuid.UUID{f.milkTea.ID, f.smoothie.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, menu, 2)
	assert.True(t, menu[f.milkTea.ID].Available())
	assert.False(t, menu[f.smoothie.ID].Available())

	tables, err := r.TablesByIDs(ctx, []uuid.UUID{f.table.ID})
	require.NoError(t, err)
	assert.Equal(t, "Bàn 1", tables[f.table.ID].Name)

	none, err := r.TablesByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepositoryFindWaitingLineItemsByName(t *testing.T) {
	f := newKitchenFixture(t)
	r := NewRepository(f.db)

	order := f.order(t, enums.OrderStatusPending)
	waiting := f.line(t, order, f.milkTea, 2, 0, enums.LineItemStatusWaiting)
	f.line(t, order, f.milkTea, 1, 0, enums.LineItemStatusInProgress)
	f.line(t, order, f.milkTea, 1, 1, enums.LineItemStatusWaiting)
	f.line(t, order, f.smoothie, 1, 0, enums.LineItemStatusWaiting)

	cancelled := f.order(t, enums.OrderStatusCancelled)
	f.line(t, cancelled, f.milkTea, 1, 0, enums.LineItemStatusWaiting)

	got, err := r.FindWaitingLineItemsByName(context.Background(), "Trà Sữa")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, waiting.ID, got[0].ID)

	none, err := r.FindWaitingLineItemsByName(context.Background(), "Sinh Tố Bơ")
	require.NoError(t, err)
	assert.Empty(t, none, "unavailable items are not started in bulk")
}

func TestRepositoryUpdateLineItemStatusIsConditional(t *testing.T) {
	f := newKitchenFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	order := f.order(t, enums.OrderStatusPending)
	line := f.line(t, order, f.milkTea, 2, 0, enums.LineItemStatusWaiting)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, err := r.UpdateLineItemStatus(ctx, line.ID, enums.LineItemStatusWaiting, enums.LineItemStatusInProgress, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.UpdateLineItemStatus(ctx, line.ID, enums.LineItemStatusWaiting, enums.LineItemStatusInProgress, at)
	require.NoError(t, err)
	assert.False(t, ok, "stale from status must not match")

	stored, err := r.FindLineItem(ctx, line.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusInProgress, stored.Status)
	require.NotNil(t, stored.StartedAt)

	ok, err = r.UpdateLineItemStatus(ctx, line.ID, enums.LineItemStatusInProgress, enums.LineItemStatusWaiting, at)
	require.NoError(t, err)
	require.True(t, ok)
	stored, err = r.FindLineItem(ctx, line.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.StartedAt, "undoing a start clears started_at")
}

func TestRepositoryFindOrderAndCreateNotification(t *testing.T) {
	f := newKitchenFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	order := f.order(t, enums.OrderStatusPending)
	f.line(t, order, f.milkTea, 2, 0, enums.LineItemStatusCompleted)

	loaded, err := r.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Items, 1)
	require.Len(t, loaded.Tables, 1)
	assert.Equal(t, f.table.ID, loaded.Tables[0].TableID)

	_, err = r.FindOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	n := &models.KitchenNotification{OrderID: &order.ID, TableLabel: "Bàn 1", Message: "Bàn 1: 2 món đã sẵn sàng"}
	require.NoError(t, r.CreateNotification(ctx, n))
	assert.NotEqual(t, uuid.Nil, n.ID)

	var count int64
	require.NoError(t, f.db.Model(&models.KitchenNotification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
