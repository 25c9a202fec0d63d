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

	"github.com/angelmondragon/tablepos-backend/internal/returns"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

type stubReturnsService struct {
	returns.Service
	requests []returns.RequestInput
	approved []returns.ReviewInput
	rejected []returns.ReviewInput
	resolved []returns.ResolveInput
}

func (s *stubReturnsService) Request(_ context.Context, input returns.RequestInput) (*returns.Slip, error) {
	s.requests = append(s.requests, input)
	return &returns.Slip{}, nil
}

func (s *stubReturnsService) Approve(_ context.Context, input returns.ReviewInput) (*returns.ApproveResult, error) {
	s.approved = append(s.approved, input)
	return &returns.ApproveResult{}, nil
}

func (s *stubReturnsService) Reject(_ context.Context, input returns.ReviewInput) (*returns.Slip, error) {
	s.rejected = append(s.rejected, input)
	return &returns.Slip{}, nil
}

func (s *stubReturnsService) ResolveCancellation(_ context.Context, input returns.ResolveInput) (*returns.Cancellation, error) {
	s.resolved = append(s.resolved, input)
	return &returns.Cancellation{ID: input.RequestID}, nil
}

func TestRequestReturn(t *testing.T) {
	svc := &stubReturnsService{}
	orderID := uuid.New()
	lineID := uuid.New()

	body := `{"items":[{"line_item_id":"` + lineID.String() + `","quantity":1}],"reason":"Đổ nước"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/x/returns", strings.NewReader(body))
	req = withURLParam(req, "orderId", orderID.String())
	req, _ = asStaff(req, enums.StaffRoleWaiter)
	resp := httptest.NewRecorder()
	RequestReturn(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	require.Len(t, svc.requests, 1)
	assert.Equal(t, orderID, svc.requests[0].OrderID)
	assert.Equal(t, []returns.RequestItem{{LineItemID: lineID, Quantity: 1}}, svc.requests[0].Items)
	assert.Equal(t, "Đổ nước", svc.requests[0].Reason)
}

func TestReviewReturnRoutesByDecision(t *testing.T) {
	svc := &stubReturnsService{}
	slipID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/x/approve", nil)
	req = withURLParam(req, "slipId", slipID.String())
	req, _ = asStaff(req, enums.StaffRoleCashier)
	resp := httptest.NewRecorder()
	ReviewReturn(svc, true, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/v1/returns/x/reject", strings.NewReader(`{"note":"Khách đã dùng"}`))
	req = withURLParam(req, "slipId", slipID.String())
	req, _ = asStaff(req, enums.StaffRoleCashier)
	resp = httptest.NewRecorder()
	ReviewReturn(svc, false, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	require.Len(t, svc.approved, 1)
	require.Len(t, svc.rejected, 1)
	assert.Equal(t, slipID, svc.approved[0].SlipID)
	assert.Equal(t, "Khách đã dùng", svc.rejected[0].Note)
}

func TestResolveCancellationRequiresDecision(t *testing.T) {
	svc := &stubReturnsService{}
	requestID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cancellations/x/resolve", strings.NewReader(`{}`))
	req = withURLParam(req, "cancellationId", requestID.String())
	req, _ = asStaff(req, enums.StaffRoleCashier)
	resp := httptest.NewRecorder()
	ResolveCancellation(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cancellations/x/resolve", strings.NewReader(`{"approve":false}`))
	req = withURLParam(req, "cancellationId", requestID.String())
	req, _ = asStaff(req, enums.StaffRoleCashier)
	resp = httptest.NewRecorder()
	ResolveCancellation(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, svc.resolved, 1)
	assert.False(t, svc.resolved[0].Approve)
	assert.Equal(t, requestID, svc.resolved[0].RequestID)
}
