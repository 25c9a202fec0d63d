package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tablepos-backend/internal/menu"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

type stubMenuService struct {
	menu.Service
	listed       []bool
	availability []menu.AvailabilityInput
}

func (s *stubMenuService) List(_ context.Context, includeHidden bool) ([]menu.MenuItemView, error) {
	s.listed = append(s.listed, includeHidden)
	return []menu.MenuItemView{}, nil
}

func (s *stubMenuService) SetAvailability(_ context.Context, input menu.AvailabilityInput) (*menu.MenuItemView, error) {
	s.availability = append(s.availability, input)
	return &menu.MenuItemView{ID: input.MenuItemID}, nil
}

type stubImporter struct {
	spreadsheetID string
	readRange     string
	actor         *menu.Actor
}

func (s *stubImporter) Import(_ context.Context, spreadsheetID, readRange string, actor *menu.Actor) (*menu.ImportResult, error) {
	s.spreadsheetID = spreadsheetID
	s.readRange = readRange
	s.actor = actor
	return &menu.ImportResult{Created: 3}, nil
}

func TestListMenuHiddenItemsAreAdminOnly(t *testing.T) {
	svc := &stubMenuService{}

	req, _ := asStaff(httptest.NewRequest(http.MethodGet, "/api/v1/menu?includeHidden=true", nil), enums.StaffRoleWaiter)
	resp := httptest.NewRecorder()
	ListMenu(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	req, _ = asStaff(httptest.NewRequest(http.MethodGet, "/api/v1/menu?includeHidden=true", nil), enums.StaffRoleAdmin)
	resp = httptest.NewRecorder()
	ListMenu(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	req, _ = asStaff(httptest.NewRequest(http.MethodGet, "/api/v1/menu", nil), enums.StaffRoleWaiter)
	resp = httptest.NewRecorder()
	ListMenu(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, []bool{true, false}, svc.listed)
}

func TestUpdateMenuAvailability(t *testing.T) {
	svc := &stubMenuService{}
	itemID := uuid.New()

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/menu/x/availability", strings.NewReader(`{"in_stock":false}`))
	req = withURLParam(req, "menuItemId", itemID.String())
	req, _ = asStaff(req, enums.StaffRoleKitchen)
	resp := httptest.NewRecorder()
	UpdateMenuAvailability(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, svc.availability, 1)
	require.NotNil(t, svc.availability[0].InStock)
	assert.False(t, *svc.availability[0].InStock)
	assert.Nil(t, svc.availability[0].Hidden)

	req = httptest.NewRequest(http.MethodPatch, "/api/v1/menu/x/availability", strings.NewReader(`{"hidden":true}`))
	req = withURLParam(req, "menuItemId", itemID.String())
	req, _ = asStaff(req, enums.StaffRoleKitchen)
	resp = httptest.NewRecorder()
	UpdateMenuAvailability(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Len(t, svc.availability, 1)
}

func TestImportMenuFallsBackToConfiguredSheet(t *testing.T) {
	importer := &stubImporter{}

	req, userID := asStaff(httptest.NewRequest(http.MethodPost, "/api/v1/menu/import", strings.NewReader(`{"range":" Menu!A:F "}`)), enums.StaffRoleAdmin)
	resp := httptest.NewRecorder()
	ImportMenu(importer, "sheet-default", testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "sheet-default", importer.spreadsheetID)
	assert.Equal(t, "Menu!A:F", importer.readRange)
	require.NotNil(t, importer.actor)
	assert.Equal(t, userID, importer.actor.UserID)
}

func TestImportMenuWithoutImporter(t *testing.T) {
	req, _ := asStaff(httptest.NewRequest(http.MethodPost, "/api/v1/menu/import", strings.NewReader(`{}`)), enums.StaffRoleAdmin)
	resp := httptest.NewRecorder()
	ImportMenu(nil, "", testLogger())(resp, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
