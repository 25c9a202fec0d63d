package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/money"
)

// Actor identifies the staff member recording an expense.
type Actor struct {
	UserID uuid.UUID
	Role   enums.StaffRole
}

// Range is a half-open [From, To) reporting window.
type Range struct {
	From time.Time
	To   time.Time
}

// DayBucket aggregates one local calendar day.
type DayBucket struct {
	Date          string          `json:"date"`
	Orders        int             `json:"orders"`
	Revenue       decimal.Decimal `json:"revenue"`
	ReturnedValue decimal.Decimal `json:"returned_value"`
	Expenses      decimal.Decimal `json:"expenses"`
}

// TopItem ranks a menu item by units sold, net of returns.
type TopItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

// SalesReport is the admin profit summary for a window.
type SalesReport struct {
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	OrderCount    int             `json:"order_count"`
	GrossSales    decimal.Decimal `json:"gross_sales"`
	ReturnedValue decimal.Decimal `json:"returned_value"`
	Revenue       decimal.Decimal `json:"revenue"`
	CostOfGoods   decimal.Decimal `json:"cost_of_goods"`
	Expenses      decimal.Decimal `json:"expenses"`
	Profit        decimal.Decimal `json:"profit"`
	RevenueLabel  string          `json:"revenue_label"`
	ProfitLabel   string          `json:"profit_label"`
	Days          []DayBucket     `json:"days"`
	TopItems      []TopItem       `json:"top_items"`
}

// ExpenseInput records an operating cost.
type ExpenseInput struct {
	Category    enums.ExpenseCategory
	Amount      decimal.Decimal
	Description string
	SpentAt     time.Time
	Actor       *Actor
}

// ExpenseView is an expense as returned by the API.
type ExpenseView struct {
	ID          uuid.UUID             `json:"id"`
	Category    enums.ExpenseCategory `json:"category"`
	Amount      decimal.Decimal       `json:"amount"`
	AmountLabel string                `json:"amount_label"`
	Description string                `json:"description"`
	SpentAt     time.Time             `json:"spent_at"`
	CreatedBy   *uuid.UUID            `json:"created_by,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// ExpenseList carries the expenses of a window and their sum.
type ExpenseList struct {
	Items      []ExpenseView   `json:"items"`
	Total      decimal.Decimal `json:"total"`
	TotalLabel string          `json:"total_label"`
}

func toExpenseView(e models.Expense) ExpenseView {
	return ExpenseView{
		ID:          e.ID,
		Category:    e.Category,
		Amount:      e.Amount,
		AmountLabel: money.FormatVND(e.Amount),
		Description: e.Description,
		SpentAt:     e.SpentAt,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
	}
}
