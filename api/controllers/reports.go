package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/tablepos-backend/api/responses"
	"github.com/angelmondragon/tablepos-backend/api/validators"
	"github.com/angelmondragon/tablepos-backend/internal/reports"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

type expenseRequest struct {
	Category    string          `json:"category" validate:"omitempty,max=40"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=500"`
	SpentAt     *time.Time      `json:"spent_at"`
}

// reportRange reads from/to. Without them the window is the current day
// in loc.
func reportRange(r *http.Request, loc *time.Location, now time.Time) (reports.Range, error) {
	from, err := validators.ParseQueryTime(r, "from", loc, false)
	if err != nil {
		return reports.Range{}, err
	}
	to, err := validators.ParseQueryTime(r, "to", loc, true)
	if err != nil {
		return reports.Range{}, err
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	window := reports.Range{From: start, To: start.AddDate(0, 0, 1)}
	if from != nil {
		window.From = *from
	}
	if to != nil {
		window.To = *to
	}
	return window, nil
}

func SalesReport(svc reports.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		window, err := reportRange(r, loc, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Sales(r.Context(), window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func ListExpenses(svc reports.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		window, err := reportRange(r, loc, time.Now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListExpenses(r.Context(), window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func CreateExpense(svc reports.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reports service unavailable"))
			return
		}
		userID, role, err := staff(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload expenseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := reports.ExpenseInput{
			Amount:      payload.Amount,
			Description: payload.Description,
			Actor:       &reports.Actor{UserID: userID, Role: role},
		}
		if raw := strings.TrimSpace(payload.Category); raw != "" {
			category, err := enums.ParseExpenseCategory(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid expense category"))
				return
			}
			input.Category = category
		}
		if payload.SpentAt != nil {
			input.SpentAt = *payload.SpentAt
		}

		view, err := svc.CreateExpense(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}
