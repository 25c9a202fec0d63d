package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tablepos-backend/internal/cart"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
)

type stubCartService struct {
	cart.Service
	added     []cart.AddInput
	updated   []cart.UpdateQuantityInput
	submitted []cart.SubmitInput
	submitErr error
}

func (s *stubCartService) Add(_ context.Context, input cart.AddInput) (*cart.View, error) {
	s.added = append(s.added, input)
	return &cart.View{TableID: input.TableID, Total: decimal.NewFromInt(45000)}, nil
}

func (s *stubCartService) UpdateQuantity(_ context.Context, input cart.UpdateQuantityInput) (*cart.View, error) {
	s.updated = append(s.updated, input)
	return &cart.View{TableID: input.TableID}, nil
}

func (s *stubCartService) SubmitToKitchen(_ context.Context, input cart.SubmitInput) (*cart.SubmitResult, error) {
	s.submitted = append(s.submitted, input)
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &cart.SubmitResult{OrderID: uuid.New(), OrderCreated: true, OrderTotal: decimal.NewFromInt(90000)}, nil
}

func cartPost(path, body string, tableID uuid.UUID, kv ...string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return withURLParam(req, append([]string{"tableId", tableID.String()}, kv...)...)
}

func TestCartAddPassesTableAndActor(t *testing.T) {
	svc := &stubCartService{}
	tableID := uuid.New()
	menuItemID := uuid.New()

	req := cartPost("/api/v1/tables/x/cart", `{"menu_item_id":"`+menuItemID.String()+`","quantity":2,"customizations":{"sugar_level":"50%"}}`, tableID)
	req, userID := asStaff(req, enums.StaffRoleWaiter)
	resp := httptest.NewRecorder()
	CartAdd(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, svc.added, 1)
	got := svc.added[0]
	assert.Equal(t, tableID, got.TableID)
	assert.Equal(t, menuItemID, got.MenuItemID)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, "50%", got.Customizations.SugarLevel)
	require.NotNil(t, got.Actor)
	assert.Equal(t, userID, got.Actor.UserID)
	assert.Equal(t, enums.StaffRoleWaiter, got.Actor.Role)
}

func TestCartAddValidatesQuantity(t *testing.T) {
	svc := &stubCartService{}
	for _, body := range []string{
		`{"menu_item_id":"` + uuid.NewString() + `","quantity":0}`,
		`{"menu_item_id":"` + uuid.NewString() + `","quantity":100}`,
		`{"quantity":1}`,
		`{"menu_item_id":"` + uuid.NewString() + `","quantity":1,"price":1}`,
	} {
		req, _ := asStaff(cartPost("/api/v1/tables/x/cart", body, uuid.New()), enums.StaffRoleWaiter)
		resp := httptest.NewRecorder()
		CartAdd(svc, testLogger())(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
	assert.Empty(t, svc.added)
}

func TestCartAddRequiresStaff(t *testing.T) {
	svc := &stubCartService{}
	req := cartPost("/api/v1/tables/x/cart", `{"menu_item_id":"`+uuid.NewString()+`","quantity":1}`, uuid.New())
	resp := httptest.NewRecorder()
	CartAdd(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCartUpdateQuantityRejectsBadItemID(t *testing.T) {
	svc := &stubCartService{}
	req, _ := asStaff(cartPost("/api/v1/tables/x/cart/y", `{"quantity":3}`, uuid.New(), "cartItemId", "not-a-uuid"), enums.StaffRoleCashier)
	resp := httptest.NewRecorder()
	CartUpdateQuantity(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.updated)

	itemID := uuid.New()
	req, _ = asStaff(cartPost("/api/v1/tables/x/cart/y", `{"quantity":3}`, uuid.New(), "cartItemId", itemID.String()), enums.StaffRoleCashier)
	resp = httptest.NewRecorder()
	CartUpdateQuantity(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, svc.updated, 1)
	assert.Equal(t, itemID, svc.updated[0].CartItemID)
	assert.Equal(t, 3, svc.updated[0].Quantity)
}

func TestCartSubmitReturnsCreated(t *testing.T) {
	svc := &stubCartService{}
	tableID := uuid.New()
	req, _ := asStaff(cartPost("/api/v1/tables/x/cart/submit", "", tableID), enums.StaffRoleWaiter)
	resp := httptest.NewRecorder()
	CartSubmit(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var envelope struct {
		Data cart.SubmitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.OrderCreated)
	assert.True(t, envelope.Data.OrderTotal.Equal(decimal.NewFromInt(90000)))
	require.Len(t, svc.submitted, 1)
	assert.Equal(t, tableID, svc.submitted[0].TableID)
}

func TestCartSubmitMapsServiceErrors(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeConflict:   http.StatusConflict,
		pkgerrors.CodeInFlight:   http.StatusConflict,
		pkgerrors.CodeNotFound:   http.StatusNotFound,
		pkgerrors.CodeValidation: http.StatusBadRequest,
	}
	for code, status := range cases {
		svc := &stubCartService{submitErr: pkgerrors.New(code, "nope")}
		req, _ := asStaff(cartPost("/api/v1/tables/x/cart/submit", "", uuid.New()), enums.StaffRoleWaiter)
		resp := httptest.NewRecorder()
		CartSubmit(svc, testLogger())(resp, req)
		assert.Equal(t, status, resp.Code, code)
	}
}
