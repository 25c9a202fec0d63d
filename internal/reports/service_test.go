package reports

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

type line struct {
	name     string
	price    int64
	cost     int64
	qty      int
	returned int
}

func saigon(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*3600)
	}
	return loc
}

func newTestService(t *testing.T) (Service, *gorm.DB, *stubOutbox) {
	t.Helper()
	db := repotest.OpenDB(t)
	emitter := &stubOutbox{}
	svc, err := NewService(NewRepository(db), dbTx{db: db}, emitter, saigon(t), nil)
	require.NoError(t, err)
	return svc, db, emitter
}

func seedSettled(t *testing.T, db *gorm.DB, status enums.OrderStatus, paidAt *time.Time, lines ...line) {
	t.Helper()
	order := models.Order{ID: uuid.New(), Status: status, PaidAt: paidAt}
	require.NoError(t, db.Create(&order).Error)
	tableID := uuid.New()
	for _, l := range lines {
		item := models.OrderLineItem{
			ID: uuid.New(), OrderID: order.ID, TableID: tableID, MenuItemID: uuid.New(),
			Name: l.name, UnitPrice: decimal.NewFromInt(l.price), UnitCost: decimal.NewFromInt(l.cost),
			Quantity: l.qty, ReturnedQuantity: l.returned, Status: enums.LineItemStatusServed,
		}
		require.NoError(t, db.Create(&item).Error)
	}
}

func utc(s string) *time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	ts = ts.UTC()
	return &ts
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func marchWindow(t *testing.T) Range {
	loc := saigon(t)
	return Range{
		From: time.Date(2026, 3, 1, 0, 0, 0, 0, loc),
		To:   time.Date(2026, 3, 3, 0, 0, 0, 0, loc),
	}
}

func TestSalesReport(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	seedSettled(t, db, enums.OrderStatusClosed, utc("2026-03-01T05:00:00Z"),
		line{name: "Trà Sữa", price: 45000, cost: 15000, qty: 3, returned: 1},
		line{name: "Bánh Mì", price: 25000, cost: 10000, qty: 2},
	)
	// 01:30 on 2 March in Saigon.
	seedSettled(t, db, enums.OrderStatusPaid, utc("2026-03-01T18:30:00Z"),
		line{name: "Trà Sữa", price: 45000, cost: 15000, qty: 1},
	)
	seedSettled(t, db, enums.OrderStatusPending, nil, line{name: "Trà Sữa", price: 45000, qty: 4})
	seedSettled(t, db, enums.OrderStatusPaid, utc("2026-03-05T05:00:00Z"), line{name: "Bánh Mì", price: 25000, qty: 9})

	_, err := svc.CreateExpense(ctx, ExpenseInput{
		Category: enums.ExpenseCategoryIngredients, Amount: decimal.NewFromInt(30000),
		Description: "Sữa tươi", SpentAt: *utc("2026-03-02T03:00:00Z"),
	})
	require.NoError(t, err)

	report, err := svc.Sales(ctx, marchWindow(t))
	require.NoError(t, err)

	assert.Equal(t, 2, report.OrderCount)
	assert.True(t, report.GrossSales.Equal(decimal.NewFromInt(230000)), report.GrossSales.String())
	assert.True(t, report.ReturnedValue.Equal(decimal.NewFromInt(45000)), report.ReturnedValue.String())
	assert.True(t, report.Revenue.Equal(decimal.NewFromInt(185000)), report.Revenue.String())
	assert.True(t, report.CostOfGoods.Equal(decimal.NewFromInt(65000)), report.CostOfGoods.String())
	assert.True(t, report.Expenses.Equal(decimal.NewFromInt(30000)), report.Expenses.String())
	assert.True(t, report.Profit.Equal(decimal.NewFromInt(90000)), report.Profit.String())
	assert.Equal(t, "185.000 ₫", report.RevenueLabel)
	assert.Equal(t, "90.000 ₫", report.ProfitLabel)

	require.Len(t, report.Days, 2)
	assert.Equal(t, "2026-03-01", report.Days[0].Date)
	assert.Equal(t, 1, report.Days[0].Orders)
	assert.True(t, report.Days[0].Revenue.Equal(decimal.NewFromInt(140000)))
	assert.Equal(t, "2026-03-02", report.Days[1].Date)
	assert.True(t, report.Days[1].Revenue.Equal(decimal.NewFromInt(45000)))
	assert.True(t, report.Days[1].Expenses.Equal(decimal.NewFromInt(30000)))

	require.Len(t, report.TopItems, 2)
	assert.Equal(t, "Trà Sữa", report.TopItems[0].Name)
	assert.Equal(t, 3, report.TopItems[0].Quantity)
	assert.True(t, report.TopItems[0].Revenue.Equal(decimal.NewFromInt(135000)))
	assert.Equal(t, "Bánh Mì", report.TopItems[1].Name)
}

func TestSalesReportValidatesRange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	_, err := svc.Sales(ctx, Range{})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Sales(ctx, Range{From: now, To: now.Add(-time.Hour)})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Sales(ctx, Range{From: now.AddDate(-2, 0, 0), To: now})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateExpense(t *testing.T) {
	svc, _, emitter := newTestService(t)
	actor := &Actor{UserID: uuid.New(), Role: enums.StaffRoleAdmin}

	view, err := svc.CreateExpense(context.Background(), ExpenseInput{
		Amount: decimal.NewFromInt(1250000), Description: "  Tiền điện ", Actor: actor,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ExpenseCategoryOther, view.Category)
	assert.Equal(t, "Tiền điện", view.Description)
	assert.Equal(t, "1.250.000 ₫", view.AmountLabel)
	require.NotNil(t, view.CreatedBy)
	assert.Equal(t, actor.UserID, *view.CreatedBy)
	assert.False(t, view.SpentAt.IsZero())

	require.Len(t, emitter.events, 1)
	assert.Equal(t, enums.EventExpenseRecorded, emitter.events[0].EventType)
	payload, ok := emitter.events[0].Data.(payloads.ExpenseRecordedEvent)
	require.True(t, ok)
	assert.Equal(t, view.ID, payload.ExpenseID)
}

func TestCreateExpenseRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateExpense(ctx, ExpenseInput{Amount: decimal.Zero, Description: "x"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateExpense(ctx, ExpenseInput{Amount: decimal.NewFromInt(1000), Description: " "})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.CreateExpense(ctx, ExpenseInput{Category: "snacks", Amount: decimal.NewFromInt(1000), Description: "x"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateExpenseRollsBackWhenEmitFails(t *testing.T) {
	svc, db, emitter := newTestService(t)
	emitter.err = errors.New("outbox down")

	_, err := svc.CreateExpense(context.Background(), ExpenseInput{Amount: decimal.NewFromInt(1000), Description: "Đá"})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Expense{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListExpenses(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for _, spent := range []string{"2026-03-01T02:00:00Z", "2026-03-02T10:00:00Z", "2026-03-09T10:00:00Z"} {
		_, err := svc.CreateExpense(ctx, ExpenseInput{
			Category: enums.ExpenseCategoryUtilities, Amount: decimal.NewFromInt(20000),
			Description: "Gas", SpentAt: *utc(spent),
		})
		require.NoError(t, err)
	}

	list, err := svc.ListExpenses(ctx, marchWindow(t))
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.True(t, list.Items[0].SpentAt.After(list.Items[1].SpentAt))
	assert.True(t, list.Total.Equal(decimal.NewFromInt(40000)))
	assert.Equal(t, "40.000 ₫", list.TotalLabel)
}
