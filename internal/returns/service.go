package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/repo"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/money"
	"github.com/angelmondragon/tablepos-backend/pkg/optimistic"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
	pkgpagination "github.com/angelmondragon/tablepos-backend/pkg/pagination"
)

const (
	maxReasonLength     = 500
	cancellationListMax = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingOps interface {
	Do(ctx context.Context, op optimistic.Op) error
}

// Service exposes the return slip and cancellation review workflow.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*Slip, error)
	List(ctx context.Context, params ListParams) (*SlipList, error)
	Approve(ctx context.Context, input ReviewInput) (*ApproveResult, error)
	Reject(ctx context.Context, input ReviewInput) (*Slip, error)
	RequestCancellation(ctx context.Context, input CancellationInput) (*Cancellation, error)
	ListCancellations(ctx context.Context, status *enums.ReviewStatus) ([]Cancellation, error)
	ResolveCancellation(ctx context.Context, input ResolveInput) (*Cancellation, error)
}

type service struct {
	repo    *Repository
	tx      txRunner
	outbox  outbox.Emitter
	pending pendingOps
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds a returns service backed by the repository and outbox.
func NewService(repository *Repository, tx txRunner, emitter outbox.Emitter, pending pendingOps, logg *logger.Logger) (Service, error) {
	if repository == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if pending == nil {
		return nil, fmt.Errorf("pending operation tracker required")
	}
	return &service{
		repo:    repository,
		tx:      tx,
		outbox:  emitter,
		pending: pending,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*Slip, error) {
	reason, err := normalizeReason(input.Reason)
	if err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, item := range input.Items {
		if item.LineItemID == uuid.Nil || item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "each item needs a line item id and a positive quantity")
		}
		if _, dup := seen[item.LineItemID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item listed twice")
		}
		seen[item.LineItemID] = struct{}{}
	}

	var out *Slip
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		order, err := txRepo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return repo.Lookup(err, "order not found")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "items can only be returned from a pending order")
		}
		requested, err := txRepo.PendingQuantities(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending returns")
		}

		lines := lineIndex(order.Items)
		slip := &models.ReturnSlip{
			OrderID:     order.ID,
			Status:      enums.ReviewStatusPending,
			Reason:      reason,
			RequestedBy: actorID(input.Actor),
		}
		for _, item := range input.Items {
			line, ok := lines[item.LineItemID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "line item not found on this order")
			}
			available := line.Remaining() - requested[line.ID]
			if item.Quantity > available {
				return pkgerrors.New(pkgerrors.CodeValidation, "return exceeds the quantity left on the line").
					WithDetails(map[string]any{"line_item_id": line.ID, "available": available})
			}
			slip.Items = append(slip.Items, models.ReturnSlipItem{LineItemID: line.ID, Quantity: item.Quantity})
		}
		if err := txRepo.CreateSlip(ctx, slip); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return slip")
		}

		view := toSlip(*slip, lines)
		out = &view
		return s.emitSlip(ctx, tx, enums.EventReturnRequested, *order, view, input.Actor)
	})
	if err != nil {
		s.logFailure(ctx, input.OrderID, "return request failed", err)
		return nil, err
	}
	return out, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*SlipList, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	query := listQuery{
		status:  params.Status,
		orderID: params.OrderID,
		limit:   pkgpagination.LimitWithBuffer(params.Limit),
	}
	cursor, err := pkgpagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query.cursor = cursor

	rows, err := s.repo.ListSlips(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return slips")
	}
	rows, next := pkgpagination.Trim(rows, params.Limit, func(s models.ReturnSlip) pkgpagination.Cursor {
		return pkgpagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
	})
	nextCursor := ""
	if next != nil {
		nextCursor = next.Encode()
	}

	var lineIDs []uuid.UUID
	for _, row := range rows {
		for _, item := range row.Items {
			lineIDs = append(lineIDs, item.LineItemID)
		}
	}
	lines, err := s.repo.LineItemsByIDs(ctx, lineIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line items")
	}

	items := make([]Slip, len(rows))
	for i, row := range rows {
		items[i] = toSlip(row, lines)
	}
	return &SlipList{Items: items, Cursor: nextCursor}, nil
}

// Approve applies the slip: every line's returned quantity grows by the slip
// quantity and the order total is recomputed. Nothing is written if any line
// no longer has enough units left.
func (s *service) Approve(ctx context.Context, input ReviewInput) (*ApproveResult, error) {
	if input.SlipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slip id is required")
	}

	var result *ApproveResult
	err := s.pending.Do(ctx, optimistic.Op{
		Entity: "return_slip",
		ID:     input.SlipID.String(),
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				result, err = s.approve(ctx, tx, input)
				return err
			})
		},
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "slip_id", input.SlipID.String()), "return approval failed", err)
		}
		return nil, err
	}
	return result, nil
}

func (s *service) approve(ctx context.Context, tx *gorm.DB, input ReviewInput) (*ApproveResult, error) {
	txRepo := s.repo.WithTx(tx)
	slip, err := txRepo.FindSlip(ctx, input.SlipID)
	if err != nil {
		return nil, repo.Lookup(err, "return slip not found")
	}
	if slip.Status != enums.ReviewStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return slip already reviewed")
	}
	order, err := txRepo.FindOrder(ctx, slip.OrderID)
	if err != nil {
		return nil, repo.Lookup(err, "order not found")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}

	for _, item := range slip.Items {
		ok, err := txRepo.IncrementReturned(ctx, item.LineItemID, item.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update returned quantity")
		}
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return exceeds the quantity left on the line").
				WithDetails(map[string]any{"line_item_id": item.LineItemID})
		}
	}

	now := s.now()
	note := optionalNote(input.Note)
	ok, err := txRepo.ReviewSlip(ctx, slip.ID, enums.ReviewStatusApproved, actorID(input.Actor), note, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve return slip")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "return slip already reviewed")
	}
	slip.Status = enums.ReviewStatusApproved
	slip.ReviewNote = note
	slip.ReviewedAt = &now

	total, err := s.recomputeTotal(ctx, txRepo, order.ID)
	if err != nil {
		return nil, err
	}

	view := toSlip(*slip, lineIndex(order.Items))
	if err := s.emitSlip(ctx, tx, enums.EventReturnApproved, *order, view, input.Actor); err != nil {
		return nil, err
	}
	return &ApproveResult{Slip: view, OrderTotal: total}, nil
}

func (s *service) Reject(ctx context.Context, input ReviewInput) (*Slip, error) {
	if input.SlipID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slip id is required")
	}

	var out *Slip
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		slip, err := txRepo.FindSlip(ctx, input.SlipID)
		if err != nil {
			return repo.Lookup(err, "return slip not found")
		}
		now := s.now()
		note := optionalNote(input.Note)
		ok, err := txRepo.ReviewSlip(ctx, slip.ID, enums.ReviewStatusRejected, actorID(input.Actor), note, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject return slip")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return slip already reviewed")
		}
		slip.Status = enums.ReviewStatusRejected
		slip.ReviewNote = note
		slip.ReviewedAt = &now

		order, err := txRepo.FindOrder(ctx, slip.OrderID)
		if err != nil {
			return repo.Lookup(err, "order not found")
		}
		view := toSlip(*slip, lineIndex(order.Items))
		out = &view
		return s.emitSlip(ctx, tx, enums.EventReturnRejected, *order, view, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) RequestCancellation(ctx context.Context, input CancellationInput) (*Cancellation, error) {
	reason, err := normalizeReason(input.Reason)
	if err != nil {
		return nil, err
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	var out *Cancellation
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		order, err := txRepo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return repo.Lookup(err, "order not found")
		}
		if order.Status != enums.OrderStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled")
		}
		exists, err := txRepo.HasPendingCancellation(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check cancellation requests")
		}
		if exists {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation already requested")
		}

		req := &models.CancellationRequest{
			OrderID:     order.ID,
			Status:      enums.ReviewStatusPending,
			Reason:      reason,
			RequestedBy: actorID(input.Actor),
		}
		if err := txRepo.CreateCancellation(ctx, req); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cancellation request")
		}
		view := toCancellation(*req)
		out = &view
		return s.emitCancellation(ctx, tx, enums.EventCancellationRequested, *order, *req, input.Actor)
	})
	if err != nil {
		s.logFailure(ctx, input.OrderID, "cancellation request failed", err)
		return nil, err
	}
	return out, nil
}

func (s *service) ListCancellations(ctx context.Context, status *enums.ReviewStatus) ([]Cancellation, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	rows, err := s.repo.ListCancellations(ctx, status, cancellationListMax)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cancellation requests")
	}
	out := make([]Cancellation, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCancellation(row))
	}
	return out, nil
}

// ResolveCancellation approves or rejects a request. Approval cancels the
// order, returns every remaining unit and frees tables nobody else sits at.
func (s *service) ResolveCancellation(ctx context.Context, input ResolveInput) (*Cancellation, error) {
	if input.RequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}

	var out *Cancellation
	err := s.pending.Do(ctx, optimistic.Op{
		Entity: "cancellation",
		ID:     input.RequestID.String(),
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				out, err = s.resolve(ctx, tx, input)
				return err
			})
		},
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "cancellation_id", input.RequestID.String()), "cancellation resolve failed", err)
		}
		return nil, err
	}
	return out, nil
}

func (s *service) resolve(ctx context.Context, tx *gorm.DB, input ResolveInput) (*Cancellation, error) {
	txRepo := s.repo.WithTx(tx)
	req, err := txRepo.FindCancellation(ctx, input.RequestID)
	if err != nil {
		return nil, repo.Lookup(err, "cancellation request not found")
	}
	if req.Status != enums.ReviewStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation request already resolved")
	}
	order, err := txRepo.FindOrder(ctx, req.OrderID)
	if err != nil {
		return nil, repo.Lookup(err, "order not found")
	}

	now := s.now()
	status := enums.ReviewStatusRejected
	if input.Approve {
		status = enums.ReviewStatusApproved
		if err := s.cancelOrder(ctx, tx, txRepo, *order, now, input.Actor); err != nil {
			return nil, err
		}
	}

	ok, err := txRepo.ReviewCancellation(ctx, req.ID, status, actorID(input.Actor), now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve cancellation request")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation request already resolved")
	}
	req.Status = status
	req.ReviewedAt = &now

	if err := s.emitCancellation(ctx, tx, enums.EventCancellationResolved, *order, *req, input.Actor); err != nil {
		return nil, err
	}
	view := toCancellation(*req)
	return &view, nil
}

func (s *service) cancelOrder(ctx context.Context, tx *gorm.DB, txRepo *Repository, order models.Order, now time.Time, actor *Actor) error {
	if err := txRepo.ReturnAllRemaining(ctx, order.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "return remaining items")
	}
	ok, err := txRepo.CancelOrder(ctx, order.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer pending")
	}
	if err := txRepo.UpdateOrderTotal(ctx, order.ID, decimal.Zero); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order total")
	}

	tableIDs := orderTableIDs(order)
	tables, err := txRepo.TablesByIDs(ctx, tableIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tables")
	}
	for _, table := range tables {
		others, err := txRepo.CountOtherOpenOrders(ctx, table.ID, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open orders")
		}
		if others > 0 || table.Status == enums.TableStatusEmpty {
			continue
		}
		if err := txRepo.UpdateTableStatus(ctx, table.ID, enums.TableStatusEmpty); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "free table")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableStatusChanged,
			AggregateType: enums.AggregateTable,
			AggregateID:   table.ID,
			Actor:         buildActor(actor),
			Data:          payloads.TableStatusChangedEvent{TableID: table.ID, Name: table.Name, From: table.Status, To: enums.TableStatusEmpty},
		}); err != nil {
			return err
		}
	}

	returned := 0
	for _, line := range order.Items {
		returned += line.Quantity
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(actor),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:          order.ID,
			TableIDs:         tableIDs,
			From:             order.Status,
			To:               enums.OrderStatusCancelled,
			Total:            decimal.Zero,
			CostTotal:        decimal.Zero,
			ReturnedQuantity: returned,
			OpenedAt:         order.CreatedAt,
			ChangedAt:        now,
		},
	})
}

func (s *service) recomputeTotal(ctx context.Context, txRepo *Repository, orderID uuid.UUID) (decimal.Decimal, error) {
	lines, err := txRepo.OrderLineItems(ctx, orderID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	totals := make([]decimal.Decimal, 0, len(lines))
	for _, line := range lines {
		totals = append(totals, line.LineTotal())
	}
	total := money.Sum(totals...)
	if err := txRepo.UpdateOrderTotal(ctx, orderID, total); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order total")
	}
	return total, nil
}

func (s *service) emitSlip(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, order models.Order, slip Slip, actor *Actor) error {
	items := make([]payloads.ReturnedLine, 0, len(slip.Items))
	for _, item := range slip.Items {
		items = append(items, payloads.ReturnedLine{LineItemID: item.LineItemID, Quantity: item.Quantity})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateReturnSlip,
		AggregateID:   slip.ID,
		Actor:         buildActor(actor),
		Data: payloads.ReturnSlipEvent{
			SlipID:      slip.ID,
			OrderID:     order.ID,
			TableIDs:    orderTableIDs(order),
			Status:      slip.Status,
			Reason:      slip.Reason,
			Items:       items,
			ReturnValue: slip.ReturnValue,
		},
	})
}

func (s *service) emitCancellation(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, order models.Order, req models.CancellationRequest, actor *Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateCancellation,
		AggregateID:   req.ID,
		Actor:         buildActor(actor),
		Data: payloads.CancellationEvent{
			RequestID: req.ID,
			OrderID:   order.ID,
			TableIDs:  orderTableIDs(order),
			Status:    req.Status,
			Reason:    req.Reason,
		},
	})
}

func (s *service) logFailure(ctx context.Context, orderID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), msg, err)
}

func normalizeReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if len([]rune(reason)) > maxReasonLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "reason is too long")
	}
	return reason, nil
}

func optionalNote(note string) *string {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	return &note
}

func lineIndex(lines []models.OrderLineItem) map[uuid.UUID]models.OrderLineItem {
	out := make(map[uuid.UUID]models.OrderLineItem, len(lines))
	for _, line := range lines {
		out[line.ID] = line
	}
	return out
}

func orderTableIDs(order models.Order) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(order.Tables))
	for _, link := range order.Tables {
		ids = append(ids, link.TableID)
	}
	return ids
}

func buildActor(actor *Actor) *outbox.ActorRef {
	if actor == nil || actor.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func actorID(actor *Actor) *uuid.UUID {
	if actor == nil || actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}
