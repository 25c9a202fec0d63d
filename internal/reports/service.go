// Package reports computes the admin sales and profit views and records
// operating expenses.
package reports

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/money"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

const (
	maxRange          = 366 * 24 * time.Hour
	topItemsLimit     = 10
	maxDescriptionLen = 500
	dayLayout         = "2006-01-02"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the reporting operations.
type Service interface {
	Sales(ctx context.Context, window Range) (*SalesReport, error)
	CreateExpense(ctx context.Context, input ExpenseInput) (*ExpenseView, error)
	ListExpenses(ctx context.Context, window Range) (*ExpenseList, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	loc    *time.Location
	now    func() time.Time
	logg   *logger.Logger
}

// NewService wires the reports service. Day buckets are cut in loc.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, loc *time.Location, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &service{repo: repo, tx: tx, outbox: emitter, loc: loc, now: time.Now, logg: logg}, nil
}

func validateRange(window Range) error {
	if window.From.IsZero() || window.To.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "from and to are required")
	}
	if !window.To.After(window.From) {
		return pkgerrors.New(pkgerrors.CodeValidation, "to must be after from")
	}
	if window.To.Sub(window.From) > maxRange {
		return pkgerrors.New(pkgerrors.CodeValidation, "range must not exceed 366 days")
	}
	return nil
}

// Sales sums settled orders in the window. Revenue excludes returned units;
// cost of goods uses the unit cost captured on each line.
func (s *service) Sales(ctx context.Context, window Range) (*SalesReport, error) {
	if err := validateRange(window); err != nil {
		return nil, err
	}
	orders, err := s.repo.SettledOrders(ctx, window.From, window.To)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settled orders")
	}
	expenses, err := s.repo.ListExpenses(ctx, window.From, window.To)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load expenses")
	}

	report := &SalesReport{
		From:          window.From,
		To:            window.To,
		GrossSales:    decimal.Zero,
		ReturnedValue: decimal.Zero,
		CostOfGoods:   decimal.Zero,
		Expenses:      decimal.Zero,
	}
	days := map[string]*DayBucket{}
	bucket := func(at time.Time) *DayBucket {
		key := at.In(s.loc).Format(dayLayout)
		b, ok := days[key]
		if !ok {
			b = &DayBucket{Date: key, Revenue: decimal.Zero, ReturnedValue: decimal.Zero, Expenses: decimal.Zero}
			days[key] = b
		}
		return b
	}
	items := map[string]*TopItem{}

	for _, order := range orders {
		if order.PaidAt == nil {
			continue
		}
		report.OrderCount++
		day := bucket(*order.PaidAt)
		day.Orders++
		for _, line := range order.Items {
			gross := money.LineTotal(line.UnitPrice, line.Quantity)
			returned := money.LineTotal(line.UnitPrice, line.ReturnedQuantity)
			net := line.LineTotal()
			report.GrossSales = report.GrossSales.Add(gross)
			report.ReturnedValue = report.ReturnedValue.Add(returned)
			report.CostOfGoods = report.CostOfGoods.Add(money.LineTotal(line.UnitCost, line.Remaining()))
			day.Revenue = day.Revenue.Add(net)
			day.ReturnedValue = day.ReturnedValue.Add(returned)

			if line.Remaining() == 0 {
				continue
			}
			top, ok := items[line.Name]
			if !ok {
				top = &TopItem{Name: line.Name, Revenue: decimal.Zero}
				items[line.Name] = top
			}
			top.Quantity += line.Remaining()
			top.Revenue = top.Revenue.Add(net)
		}
	}
	for _, expense := range expenses {
		report.Expenses = report.Expenses.Add(expense.Amount)
		day := bucket(expense.SpentAt)
		day.Expenses = day.Expenses.Add(expense.Amount)
	}

	report.Revenue = report.GrossSales.Sub(report.ReturnedValue)
	report.Profit = report.Revenue.Sub(report.CostOfGoods).Sub(report.Expenses)
	report.RevenueLabel = money.FormatVND(report.Revenue)
	report.ProfitLabel = money.FormatVND(report.Profit)
	report.Days = sortedDays(days)
	report.TopItems = rankItems(items)
	return report, nil
}

func sortedDays(days map[string]*DayBucket) []DayBucket {
	out := make([]DayBucket, 0, len(days))
	for _, b := range days {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func rankItems(items map[string]*TopItem) []TopItem {
	out := make([]TopItem, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if !out[i].Revenue.Equal(out[j].Revenue) {
			return out[i].Revenue.GreaterThan(out[j].Revenue)
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topItemsLimit {
		out = out[:topItemsLimit]
	}
	return out
}

func (s *service) CreateExpense(ctx context.Context, input ExpenseInput) (*ExpenseView, error) {
	if input.Category == "" {
		input.Category = enums.ExpenseCategoryOther
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid expense category")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if len([]rune(description)) > maxDescriptionLen {
		description = string([]rune(description)[:maxDescriptionLen])
	}
	spentAt := input.SpentAt
	if spentAt.IsZero() {
		spentAt = s.now()
	}

	expense := &models.Expense{
		ID:          uuid.New(),
		Category:    input.Category,
		Amount:      input.Amount.Round(0),
		Description: description,
		SpentAt:     spentAt.UTC(),
	}
	var actor *outbox.ActorRef
	if input.Actor != nil && input.Actor.UserID != uuid.Nil {
		userID := input.Actor.UserID
		expense.CreatedBy = &userID
		actor = &outbox.ActorRef{UserID: userID, Role: string(input.Actor.Role)}
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateExpense(ctx, expense); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create expense")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventExpenseRecorded,
			AggregateType: enums.AggregateExpense,
			AggregateID:   expense.ID,
			Actor:         actor,
			Data: payloads.ExpenseRecordedEvent{
				ExpenseID: expense.ID,
				Category:  expense.Category,
				Amount:    expense.Amount,
				SpentAt:   expense.SpentAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"expense_id": expense.ID.String(),
			"category":   string(expense.Category),
			"amount":     expense.Amount.String(),
		}), "expense recorded")
	}
	view := toExpenseView(*expense)
	return &view, nil
}

func (s *service) ListExpenses(ctx context.Context, window Range) (*ExpenseList, error) {
	if err := validateRange(window); err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, window.From, window.To)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expenses")
	}
	out := &ExpenseList{Items: make([]ExpenseView, 0, len(expenses)), Total: decimal.Zero}
	for _, expense := range expenses {
		out.Items = append(out.Items, toExpenseView(expense))
		out.Total = out.Total.Add(expense.Amount)
	}
	out.TotalLabel = money.FormatVND(out.Total)
	return out, nil
}
