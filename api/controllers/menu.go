package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/tablepos-backend/api/middleware"
	"github.com/angelmondragon/tablepos-backend/api/responses"
	"github.com/angelmondragon/tablepos-backend/api/validators"
	"github.com/angelmondragon/tablepos-backend/internal/menu"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

// MenuImporter pulls menu rows from a spreadsheet.
type MenuImporter interface {
	Import(ctx context.Context, spreadsheetID, readRange string, actor *menu.Actor) (*menu.ImportResult, error)
}

type menuAvailabilityRequest struct {
	InStock *bool `json:"in_stock"`
	Hidden  *bool `json:"hidden"`
}

type menuImportRequest struct {
	SpreadsheetID string `json:"spreadsheet_id" validate:"max=200"`
	Range         string `json:"range" validate:"max=100"`
}

// ListMenu returns the orderable menu. Admins may pass includeHidden=true.
func ListMenu(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "menu service unavailable"))
			return
		}
		includeHidden, err := validators.ParseQueryBool(r, "includeHidden", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if includeHidden && middleware.RoleFromContext(r.Context()) != enums.StaffRoleAdmin {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "hidden items are admin only"))
			return
		}
		items, err := svc.List(r.Context(), includeHidden)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func UpdateMenuAvailability(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "menu service unavailable"))
			return
		}
		userID, role, err := staff(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		itemID, err := validators.ParseUUIDParam(r, "menuItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload menuAvailabilityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Hidden != nil && role != enums.StaffRoleAdmin {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "only admins can hide menu items"))
			return
		}

		view, err := svc.SetAvailability(r.Context(), menu.AvailabilityInput{
			MenuItemID: itemID,
			InStock:    payload.InStock,
			Hidden:     payload.Hidden,
			Actor:      &menu.Actor{UserID: userID, Role: role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// ImportMenu upserts the menu from the configured Google Sheet unless the
// request names another one.
func ImportMenu(importer MenuImporter, defaultSpreadsheetID string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if importer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "menu import not configured"))
			return
		}
		userID, role, err := staff(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload menuImportRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		spreadsheetID := strings.TrimSpace(payload.SpreadsheetID)
		if spreadsheetID == "" {
			spreadsheetID = defaultSpreadsheetID
		}

		result, err := importer.Import(r.Context(), spreadsheetID, strings.TrimSpace(payload.Range), &menu.Actor{UserID: userID, Role: role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
