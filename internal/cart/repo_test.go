package cart

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

type cartFixture struct {
	db      *gorm.DB
	table   models.DiningTable
	milkTea models.MenuItem
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	db := repotest.OpenDB(t)
	f := &cartFixture{
		db:    db,
		table: models.DiningTable{ID: uuid.New(), Name: "Bàn 2", Seats: 4, Status: enums.TableStatusEmpty},
		milkTea: models.MenuItem{
			ID: uuid.New(), SKU: "TS-01", Name: "Trà Sữa", Category: "drinks",
			Price: decimal.NewFromInt(45000), InStock: true,
		},
	}
	require.NoError(t, db.Create(&f.table).Error)
	require.NoError(t, db.Create(&f.milkTea).Error)
	return f
}

func TestRepositoryCartItemLifecycle(t *testing.T) {
	f := newCartFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	item := &models.CartItem{
		TableID:        f.table.ID,
		MenuItemID:     f.milkTea.ID,
		Quantity:       2,
		Customizations: types.Customizations{Size: "L", Toppings: []string{"trân châu"}},
	}
	require.NoError(t, r.CreateItem(ctx, item))
	require.NotEqual(t, uuid.Nil, item.ID)

	require.NoError(t, r.UpdateItemQuantity(ctx, item.ID, 5))
	found, err := r.FindItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, found.Quantity)
	assert.Equal(t, "L", found.Customizations.Size)
	assert.Equal(t, []string{"trân châu"}, found.Customizations.Toppings)

	items, err := r.ListByTable(ctx, f.table.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	removed, err := r.DeleteItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = r.DeleteItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = r.FindItem(ctx, item.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryDeleteByTable(t *testing.T) {
	f := newCartFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	other := models.DiningTable{ID: uuid.New(), Name: "Bàn 7", Seats: 2, Status: enums.TableStatusEmpty}
	require.NoError(t, f.db.Create(&other).Error)
	for _, tableID := range []uuid.UUID{f.table.ID, f.table.ID, other.ID} {
		require.NoError(t, r.CreateItem(ctx, &models.CartItem{TableID: tableID, MenuItemID: f.milkTea.ID, Quantity: 1}))
	}

	n, err := r.DeleteByTable(ctx, f.table.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	left, err := r.ListByTable(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestRepositoryOpenOrderForTable(t *testing.T) {
	f := newCartFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	_, err := r.FindOpenOrderForTable(ctx, f.table.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	paid := &models.Order{ID: uuid.New(), Status: enums.OrderStatusPaid}
	require.NoError(t, r.CreateOrder(ctx, paid))
	require.NoError(t, r.LinkOrderTable(ctx, paid.ID, f.table.ID))
	_, err = r.FindOpenOrderForTable(ctx, f.table.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound, "paid orders no longer take new items")

	open := &models.Order{Status: enums.OrderStatusPending}
	require.NoError(t, r.CreateOrder(ctx, open))
	require.NoError(t, r.LinkOrderTable(ctx, open.ID, f.table.ID))
	require.NoError(t, r.LinkOrderTable(ctx, open.ID, f.table.ID))

	found, err := r.FindOpenOrderForTable(ctx, f.table.ID)
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)

	var links int64
	require.NoError(t, f.db.Model(&models.OrderTable{}).Where("order_id = ?", open.ID).Count(&links).Error)
	assert.EqualValues(t, 1, links, "linking twice keeps one row")
}

func TestRepositoryLineItemsAndTotal(t *testing.T) {
	f := newCartFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	order := &models.Order{Status: enums.OrderStatusPending}
	require.NoError(t, r.CreateOrder(ctx, order))
	lines := []models.OrderLineItem{
		{ID: uuid.New(), OrderID: order.ID, TableID: f.table.ID, MenuItemID: f.milkTea.ID, Name: f.milkTea.Name, UnitPrice: f.milkTea.Price, Quantity: 2, Status: enums.LineItemStatusWaiting},
		{ID: uuid.New(), OrderID: order.ID, TableID: f.table.ID, MenuItemID: f.milkTea.ID, Name: f.milkTea.Name, UnitPrice: f.milkTea.Price, Quantity: 1, Status: enums.LineItemStatusWaiting},
	}
	require.NoError(t, r.CreateLineItems(ctx, lines))
	require.NoError(t, r.CreateLineItems(ctx, nil))

	got, err := r.OrderLineItems(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NoError(t, r.UpdateOrderTotal(ctx, order.ID, decimal.NewFromInt(135000)))
	var stored models.Order
	require.NoError(t, f.db.First(&stored, "id = ?", order.ID).Error)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(135000)))

	require.NoError(t, r.UpdateTableStatus(ctx, f.table.ID, enums.TableStatusServing))
	table, err := r.FindTable(ctx, f.table.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusServing, table.Status)

	menu, err := r.MenuItemsByIDs(ctx, []uuid.UUID{f.milkTea.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, menu, 1)
}

func TestRepositoryWithTxRollsBack(t *testing.T) {
	f := newCartFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		txRepo := r.WithTx(tx)
		if err := txRepo.CreateItem(ctx, &models.CartItem{TableID: f.table.ID, MenuItemID: f.milkTea.ID, Quantity: 1}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	items, err := r.ListByTable(ctx, f.table.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRepositoryStaleTables(t *testing.T) {
	f := newCartFixture(t)
	r := NewRepository(f.db)
	ctx := context.Background()

	busy := models.DiningTable{ID: uuid.New(), Name: "Bàn 9", Seats: 2, Status: enums.TableStatusServing}
	require.NoError(t, f.db.Create(&busy).Error)

	old := time.Now().UTC().Add(-20 * time.Hour)
	stale := &models.CartItem{TableID: f.table.ID, MenuItemID: f.milkTea.ID, Quantity: 1}
	require.NoError(t, r.CreateItem(ctx, stale))
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("id = ?", stale.ID).UpdateColumn("updated_at", old).Error)

	oldOnBusy := &models.CartItem{TableID: busy.ID, MenuItemID: f.milkTea.ID, Quantity: 1}
	require.NoError(t, r.CreateItem(ctx, oldOnBusy))
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("id = ?", oldOnBusy.ID).UpdateColumn("updated_at", old).Error)
	require.NoError(t, r.CreateItem(ctx, &models.CartItem{TableID: busy.ID, MenuItemID: f.milkTea.ID, Quantity: 2}))

	ids, err := r.StaleTables(ctx, time.Now().UTC().Add(-12*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{f.table.ID}, ids)
}
