package tables

import (
	"context"
	"errors"
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
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

type dbTx struct {
	db *gorm.DB
}

func (d dbTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.db.WithContext(ctx).Transaction(fn)
}

type stubOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (s *stubOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func newTestService(t *testing.T) (Service, *gorm.DB, *stubOutbox) {
	t.Helper()
	db := repotest.OpenDB(t)
	emitter := &stubOutbox{}
	svc, err := NewService(NewRepository(db), dbTx{db: db}, emitter, nil)
	require.NoError(t, err)
	return svc, db, emitter
}

func seedTable(t *testing.T, db *gorm.DB, name string, status enums.TableStatus) models.DiningTable {
	t.Helper()
	table := models.DiningTable{ID: uuid.New(), Name: name, Seats: 4, Status: status}
	require.NoError(t, db.Create(&table).Error)
	return table
}

func seedOrder(t *testing.T, db *gorm.DB, table models.DiningTable, status enums.OrderStatus, quantities ...int) models.Order {
	t.Helper()
	menu := models.MenuItem{
		ID: uuid.New(), SKU: "BM-" + uuid.NewString()[:8], Name: "Bánh Mì", Category: "food",
		Price: decimal.NewFromInt(25000), Cost: decimal.NewFromInt(10000), InStock: true,
	}
	require.NoError(t, db.Create(&menu).Error)

	order := models.Order{ID: uuid.New(), Status: status, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&order).Error)
	require.NoError(t, db.Create(&models.OrderTable{OrderID: order.ID, TableID: table.ID}).Error)
	for _, qty := range quantities {
		line := models.OrderLineItem{
			ID: uuid.New(), OrderID: order.ID, TableID: table.ID, MenuItemID: menu.ID,
			Name: menu.Name, UnitPrice: menu.Price, UnitCost: menu.Cost,
			Quantity: qty, Status: enums.LineItemStatusWaiting,
		}
		require.NoError(t, db.Create(&line).Error)
	}
	return order
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	db := repotest.OpenDB(t)
	_, err := NewService(nil, dbTx{db: db}, &stubOutbox{}, nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(db), nil, &stubOutbox{}, nil)
	require.Error(t, err)
	_, err = NewService(NewRepository(db), dbTx{db: db}, nil, nil)
	require.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to enums.TableStatus
		want     bool
	}{
		{enums.TableStatusEmpty, enums.TableStatusServing, true},
		{enums.TableStatusServing, enums.TableStatusNeedsCleaning, true},
		{enums.TableStatusServing, enums.TableStatusEmpty, true},
		{enums.TableStatusNeedsCleaning, enums.TableStatusEmpty, true},
		{enums.TableStatusEmpty, enums.TableStatusNeedsCleaning, false},
		{enums.TableStatusNeedsCleaning, enums.TableStatusServing, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "Trống", StatusLabel(enums.TableStatusEmpty))
	assert.Equal(t, "Đang phục vụ", StatusLabel(enums.TableStatusServing))
	assert.Equal(t, "Cần dọn", StatusLabel(enums.TableStatusNeedsCleaning))
	assert.Equal(t, "mystery", StatusLabel(enums.TableStatus("mystery")))
}

func TestListAttachesOpenOrders(t *testing.T) {
	svc, db, _ := newTestService(t)
	busy := seedTable(t, db, "Bàn 2", enums.TableStatusServing)
	seedTable(t, db, "Bàn 1", enums.TableStatusEmpty)
	open := seedOrder(t, db, busy, enums.OrderStatusPending, 2, 1)
	seedOrder(t, db, busy, enums.OrderStatusClosed, 5)

	views, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, "Bàn 1", views[0].Name)
	assert.Empty(t, views[0].OpenOrders)
	assert.Equal(t, "Trống", views[0].StatusLabel)

	require.Len(t, views[1].OpenOrders, 1)
	summary := views[1].OpenOrders[0]
	assert.Equal(t, open.ID, summary.OrderID)
	assert.Equal(t, 3, summary.ItemCount)
	assert.True(t, summary.Total.Equal(decimal.NewFromInt(75000)))
	assert.Equal(t, "75.000 ₫", summary.TotalLabel)
}

func TestCreateTable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, CreateTableInput{Name: "  Bàn 9 "})
	require.NoError(t, err)
	assert.Equal(t, "Bàn 9", view.Name)
	assert.Equal(t, 4, view.Seats)
	assert.Equal(t, enums.TableStatusEmpty, view.Status)

	_, err = svc.Create(ctx, CreateTableInput{Name: "Bàn 9", Seats: 2})
	requireCode(t, err, pkgerrors.CodeConflict)

	_, err = svc.Create(ctx, CreateTableInput{Name: ""})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Create(ctx, CreateTableInput{Name: "Bàn 10", Seats: 99})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdateStatusEmitsEvent(t *testing.T) {
	svc, db, emitter := newTestService(t)
	table := seedTable(t, db, "Bàn 3", enums.TableStatusNeedsCleaning)
	actor := &Actor{UserID: uuid.New(), Role: enums.StaffRoleWaiter}

	view, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{TableID: table.ID, To: enums.TableStatusEmpty, Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusEmpty, view.Status)

	var stored models.DiningTable
	require.NoError(t, db.First(&stored, "id = ?", table.ID).Error)
	assert.Equal(t, enums.TableStatusEmpty, stored.Status)

	require.Len(t, emitter.events, 1)
	event := emitter.events[0]
	assert.Equal(t, enums.EventTableStatusChanged, event.EventType)
	assert.Equal(t, enums.AggregateTable, event.AggregateType)
	require.NotNil(t, event.Actor)
	assert.Equal(t, "waiter", event.Actor.Role)
	payload, ok := event.Data.(payloads.TableStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, enums.TableStatusNeedsCleaning, payload.From)
	assert.Equal(t, enums.TableStatusEmpty, payload.To)
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	svc, db, emitter := newTestService(t)
	table := seedTable(t, db, "Bàn 3", enums.TableStatusServing)

	view, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{TableID: table.ID, To: enums.TableStatusServing})
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusServing, view.Status)
	assert.Empty(t, emitter.events)
}

func TestUpdateStatusRejectsIllegalMoves(t *testing.T) {
	svc, db, emitter := newTestService(t)
	ctx := context.Background()
	empty := seedTable(t, db, "Bàn 1", enums.TableStatusEmpty)
	dirty := seedTable(t, db, "Bàn 2", enums.TableStatusNeedsCleaning)

	_, err := svc.UpdateStatus(ctx, UpdateStatusInput{TableID: empty.ID, To: enums.TableStatusNeedsCleaning})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{TableID: dirty.ID, To: enums.TableStatusServing})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{TableID: uuid.New(), To: enums.TableStatusEmpty})
	requireCode(t, err, pkgerrors.CodeNotFound)

	_, err = svc.UpdateStatus(ctx, UpdateStatusInput{TableID: empty.ID, To: enums.TableStatus("closed")})
	requireCode(t, err, pkgerrors.CodeValidation)

	assert.Empty(t, emitter.events)
}

func TestUpdateStatusServingToEmptyNeedsNoOpenOrder(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	table := seedTable(t, db, "Bàn 5", enums.TableStatusServing)
	order := seedOrder(t, db, table, enums.OrderStatusPaid, 1)

	_, err := svc.UpdateStatus(ctx, UpdateStatusInput{TableID: table.ID, To: enums.TableStatusEmpty})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusClosed).Error)
	view, err := svc.UpdateStatus(ctx, UpdateStatusInput{TableID: table.ID, To: enums.TableStatusEmpty})
	require.NoError(t, err)
	assert.Equal(t, enums.TableStatusEmpty, view.Status)
}

func TestUpdateStatusRollsBackWhenEmitFails(t *testing.T) {
	svc, db, emitter := newTestService(t)
	table := seedTable(t, db, "Bàn 6", enums.TableStatusEmpty)
	emitter.err = errors.New("outbox down")

	_, err := svc.UpdateStatus(context.Background(), UpdateStatusInput{TableID: table.ID, To: enums.TableStatusServing})
	require.Error(t, err)

	var stored models.DiningTable
	require.NoError(t, db.First(&stored, "id = ?", table.ID).Error)
	assert.Equal(t, enums.TableStatusEmpty, stored.Status)
}
