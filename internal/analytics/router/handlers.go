package router

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tablepos-backend/internal/analytics/types"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

// orderStatusHandler records paid, closed and cancelled orders. Only the
// paid row carries revenue so a paid-then-closed order is counted once.
type orderStatusHandler struct {
	writer Writer
	loc    *time.Location
	logg   *logger.Logger
}

func newOrderStatusHandler(writer Writer, loc *time.Location, logg *logger.Logger) Handler {
	return &orderStatusHandler{writer: writer, loc: loc, logg: logg}
}

func (h *orderStatusHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"order_id":   event.OrderID.String(),
		"to":         string(event.To),
		"total":      event.Total.String(),
	})

	row, err := baseRow(envelope, event.ChangedAt, h.loc, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build sales row", err)
		return err
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.TableIDs = idStrings(event.TableIDs)
	row.Status = stringPtr(string(event.To))
	row.ItemCount = int64(event.ItemCount)
	row.ReturnedQuantity = int64(event.ReturnedQuantity)
	if envelope.EventType == enums.EventOrderPaid {
		row.RevenueVND = vnd(event.Total)
		row.CostVND = vnd(event.CostTotal)
	}
	if !event.OpenedAt.IsZero() && !event.ChangedAt.IsZero() && event.ChangedAt.After(event.OpenedAt) {
		row.DwellSeconds = int64Ptr(int64(event.ChangedAt.Sub(event.OpenedAt) / time.Second))
	}

	if err := h.writer.InsertSalesFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert sales fact", err)
		return err
	}
	h.logg.Info(logCtx, "order status sales fact inserted")
	return nil
}

type returnApprovedHandler struct {
	writer Writer
	loc    *time.Location
	logg   *logger.Logger
}

func newReturnApprovedHandler(writer Writer, loc *time.Location, logg *logger.Logger) Handler {
	return &returnApprovedHandler{writer: writer, loc: loc, logg: logg}
}

func (h *returnApprovedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.ReturnSlipEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"order_id":   event.OrderID.String(),
		"slip_id":    event.SlipID.String(),
	})

	row, err := baseRow(envelope, envelope.OccurredAt, h.loc, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build sales row", err)
		return err
	}
	quantity := 0
	for _, item := range event.Items {
		quantity += item.Quantity
	}
	row.OrderID = stringPtr(event.OrderID.String())
	row.TableIDs = idStrings(event.TableIDs)
	row.Status = stringPtr(string(event.Status))
	row.ReturnedVND = vnd(event.ReturnValue)
	row.ReturnedQuantity = int64(quantity)

	if err := h.writer.InsertSalesFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert sales fact", err)
		return err
	}
	h.logg.Info(logCtx, "return sales fact inserted")
	return nil
}

type expenseRecordedHandler struct {
	writer Writer
	loc    *time.Location
	logg   *logger.Logger
}

func newExpenseRecordedHandler(writer Writer, loc *time.Location, logg *logger.Logger) Handler {
	return &expenseRecordedHandler{writer: writer, loc: loc, logg: logg}
}

func (h *expenseRecordedHandler) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.ExpenseRecordedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"event_type": envelope.EventType,
		"expense_id": event.ExpenseID.String(),
	})

	row, err := baseRow(envelope, event.SpentAt, h.loc, event)
	if err != nil {
		h.logg.Error(logCtx, "failed to build sales row", err)
		return err
	}
	row.Status = stringPtr(string(event.Category))
	row.ExpenseVND = vnd(event.Amount)

	if err := h.writer.InsertSalesFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "failed to insert sales fact", err)
		return err
	}
	return nil
}
