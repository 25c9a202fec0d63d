package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/kitchen"
	"github.com/angelmondragon/tablepos-backend/internal/repo"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/money"
	"github.com/angelmondragon/tablepos-backend/pkg/optimistic"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tablepos-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingOps interface {
	Do(ctx context.Context, op optimistic.Op) error
}

// Service defines order-level operations for the cashier and admin screens.
type Service interface {
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	Detail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*StatusResult, error)
	Split(ctx context.Context, input SplitInput) (*SplitResult, error)
	Merge(ctx context.Context, input MergeInput) (*MergeResult, error)
	Transfer(ctx context.Context, input TransferInput) (*TransferResult, error)
	ReturnedQuantity(ctx context.Context, orderID uuid.UUID) (int, error)
}

type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outbox.Emitter
	Pending pendingOps
	Logger  *logger.Logger
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	pending pendingOps
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Pending == nil {
		return nil, fmt.Errorf("pending operation tracker required")
	}
	return &service{
		repo:    p.Repo,
		tx:      p.Tx,
		outbox:  p.Outbox,
		pending: p.Pending,
		logg:    p.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if filters.DateFrom != nil && filters.DateTo != nil && !filters.DateFrom.Before(*filters.DateTo) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date_from must be before date_to")
	}
	query := listOrdersParams{ListFilters: filters, Limit: params.Limit}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query.Cursor = cursor

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	var tableIDs []uuid.UUID
	for _, order := range rows {
		tableIDs = append(tableIDs, orderTableIDs(order)...)
	}
	tables, err := s.repo.TablesByIDs(ctx, tableIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tables")
	}

	out := &OrderList{Orders: make([]OrderSummary, 0, len(rows))}
	for _, order := range rows {
		total := displayTotal(order.Items)
		items := 0
		for _, line := range order.Items {
			items += line.Remaining()
		}
		out.Orders = append(out.Orders, OrderSummary{
			ID:         order.ID,
			Status:     order.Status,
			Tables:     tableRefs(orderTableIDs(order), tables),
			Total:      total,
			TotalLabel: money.FormatVND(total),
			ItemCount:  items,
			CreatedAt:  order.CreatedAt,
			PaidAt:     order.PaidAt,
		})
	}
	if next != nil {
		out.NextCursor = next.Encode()
	}
	return out, nil
}

func (s *service) Detail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, repo.Lookup(err, "order not found")
	}
	tables, err := s.repo.TablesByIDs(ctx, orderTableIDs(*order))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tables")
	}

	detail := &OrderDetail{
		ID:         order.ID,
		Status:     order.Status,
		Tables:     tableRefs(orderTableIDs(*order), tables),
		Lines:      make([]LineDetail, 0, len(order.Items)),
		Note:       order.Note,
		MergedInto: order.MergedInto,
		CreatedAt:  order.CreatedAt,
		PaidAt:     order.PaidAt,
		ClosedAt:   order.ClosedAt,
	}
	for _, line := range order.Items {
		detail.ReturnedQuantity += line.ReturnedQuantity
		detail.Lines = append(detail.Lines, LineDetail{
			ID:               line.ID,
			MenuItemID:       line.MenuItemID,
			TableID:          line.TableID,
			Name:             line.Name,
			Quantity:         line.Quantity,
			ReturnedQuantity: line.ReturnedQuantity,
			Remaining:        line.Remaining(),
			UnitPrice:        line.UnitPrice,
			LineTotal:        line.LineTotal(),
			Status:           line.Status,
			StatusLabel:      kitchen.Label(line.Status),
			Customizations:   line.Customizations,
		})
	}
	detail.Total = displayTotal(order.Items)
	detail.TotalLabel = money.FormatVND(detail.Total)
	return detail, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*StatusResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var result *StatusResult
	err := s.pending.Do(ctx, optimistic.Op{
		Entity: "order",
		ID:     input.OrderID.String(),
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				result, err = s.updateStatus(ctx, tx, input)
				return err
			})
		},
	})
	if err != nil {
		s.logFailure(ctx, input.OrderID, "order status change failed", err)
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
			"from": result.From,
			"to":   result.To,
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return result, nil
}

func (s *service) updateStatus(ctx context.Context, tx *gorm.DB, input UpdateStatusInput) (*StatusResult, error) {
	txRepo := s.repo.WithTx(tx)
	order, err := txRepo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, repo.Lookup(err, "order not found")
	}
	if err := validateStatusTransition(order.Status, input.To); err != nil {
		return nil, err
	}
	if input.To == enums.OrderStatusClosed {
		if pending := unservedNames(order.Items); len(pending) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order still has items that were not served").
				WithDetails(map[string]any{"unserved": pending})
		}
	}

	now := s.now()
	ok, err := txRepo.UpdateOrderStatus(ctx, order.ID, order.Status, input.To, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order was changed by someone else")
	}
	total, err := recomputeTotal(ctx, txRepo, order.ID)
	if err != nil {
		return nil, err
	}

	tableIDs := orderTableIDs(*order)
	if released, ok := releasedTableStatus(input.To); ok {
		if err := s.releaseTables(ctx, tx, txRepo, order.ID, tableIDs, released, input.Actor); err != nil {
			return nil, err
		}
	}

	payload := payloads.OrderStatusChangedEvent{
		OrderID:   order.ID,
		TableIDs:  tableIDs,
		From:      order.Status,
		To:        input.To,
		Total:     total,
		CostTotal: decimal.Zero,
		OpenedAt:  order.CreatedAt,
		ChangedAt: now,
	}
	for _, line := range order.Items {
		payload.CostTotal = payload.CostTotal.Add(money.LineTotal(line.UnitCost, line.Remaining()))
		payload.ItemCount += line.Remaining()
		payload.ReturnedQuantity += line.ReturnedQuantity
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventFor(input.To),
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(input.Actor),
		Data:          payload,
	}); err != nil {
		return nil, err
	}

	return &StatusResult{OrderID: order.ID, From: order.Status, To: input.To, Total: total}, nil
}

// releaseTables moves each table to status unless another open order still
// sits there.
func (s *service) releaseTables(ctx context.Context, tx *gorm.DB, txRepo Repository, orderID uuid.UUID, tableIDs []uuid.UUID, status enums.TableStatus, actor *Actor) error {
	tables, err := txRepo.TablesByIDs(ctx, tableIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tables")
	}
	for _, id := range tableIDs {
		table, ok := tables[id]
		if !ok {
			continue
		}
		others, err := txRepo.CountOpenOrdersForTable(ctx, id, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open orders")
		}
		if others > 0 {
			continue
		}
		if err := s.setTableStatus(ctx, tx, txRepo, table, status, actor); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) setTableStatus(ctx context.Context, tx *gorm.DB, txRepo Repository, table models.DiningTable, to enums.TableStatus, actor *Actor) error {
	if table.Status == to {
		return nil
	}
	if err := txRepo.UpdateTableStatus(ctx, table.ID, to); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update table status")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTableStatusChanged,
		AggregateType: enums.AggregateTable,
		AggregateID:   table.ID,
		Actor:         buildActor(actor),
		Data: payloads.TableStatusChangedEvent{
			TableID: table.ID,
			Name:    table.Name,
			From:    table.Status,
			To:      to,
		},
	})
}

// Split moves part of an order to another table's open order, creating one
// when the table has none. Lines moved in full keep their id; partial moves
// shrink the source line and add a new line on the target.
func (s *service) Split(ctx context.Context, input SplitInput) (*SplitResult, error) {
	if input.OrderID == uuid.Nil || input.TargetTableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and target table required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
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

	var result *SplitResult
	err := s.pending.Do(ctx, optimistic.Op{
		Entity: "order",
		ID:     input.OrderID.String(),
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				result, err = s.split(ctx, tx, input)
				return err
			})
		},
	})
	if err != nil {
		s.logFailure(ctx, input.OrderID, "order split failed", err)
		return nil, err
	}
	return result, nil
}

func (s *service) split(ctx context.Context, tx *gorm.DB, input SplitInput) (*SplitResult, error) {
	txRepo := s.repo.WithTx(tx)
	source, err := txRepo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, repo.Lookup(err, "order not found")
	}
	if !source.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be split")
	}
	sourceTables := orderTableIDs(*source)
	for _, id := range sourceTables {
		if id == input.TargetTableID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "target table already belongs to this order")
		}
	}
	tables, err := txRepo.TablesByIDs(ctx, []uuid.UUID{input.TargetTableID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tables")
	}
	targetTable, ok := tables[input.TargetTableID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "target table not found")
	}

	lines := make(map[uuid.UUID]models.OrderLineItem, len(source.Items))
	remaining := 0
	for _, line := range source.Items {
		lines[line.ID] = line
		remaining += line.Remaining()
	}
	moving := 0
	for _, item := range input.Items {
		line, ok := lines[item.LineItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "line item not found on this order")
		}
		if item.Quantity > line.Remaining() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds what is left on the line").
				WithDetails(map[string]any{"line_item_id": line.ID, "remaining": line.Remaining()})
		}
		moving += item.Quantity
	}
	if moving == remaining {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "moving every item is a transfer, not a split")
	}

	target, created, err := s.openOrderAt(ctx, txRepo, targetTable.ID, input.Actor)
	if err != nil {
		return nil, err
	}

	now := s.now()
	movedIDs := make([]uuid.UUID, 0, len(input.Items))
	var fresh []models.OrderLineItem
	for _, item := range input.Items {
		line := lines[item.LineItemID]
		if item.Quantity == line.Quantity && line.ReturnedQuantity == 0 {
			if err := txRepo.MoveLineItem(ctx, line.ID, target.ID, targetTable.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move line item")
			}
			movedIDs = append(movedIDs, line.ID)
			continue
		}
		if err := txRepo.UpdateLineItemQuantity(ctx, line.ID, line.Quantity-item.Quantity); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shrink line item")
		}
		copyLine := line
		copyLine.ID = uuid.New()
		copyLine.OrderID = target.ID
		copyLine.TableID = targetTable.ID
		copyLine.Quantity = item.Quantity
		copyLine.ReturnedQuantity = 0
		copyLine.CreatedAt = now
		copyLine.UpdatedAt = now
		fresh = append(fresh, copyLine)
		movedIDs = append(movedIDs, copyLine.ID)
	}
	if err := txRepo.CreateLineItems(ctx, fresh); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert split lines")
	}

	sourceTotal, err := recomputeTotal(ctx, txRepo, source.ID)
	if err != nil {
		return nil, err
	}
	targetTotal, err := recomputeTotal(ctx, txRepo, target.ID)
	if err != nil {
		return nil, err
	}
	if err := s.setTableStatus(ctx, tx, txRepo, targetTable, enums.TableStatusServing, input.Actor); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderSplit,
		AggregateType: enums.AggregateOrder,
		AggregateID:   source.ID,
		Actor:         buildActor(input.Actor),
		Data: payloads.OrderSplitEvent{
			SourceOrderID: source.ID,
			TargetOrderID: target.ID,
			TargetTableID: targetTable.ID,
			SourceTables:  sourceTables,
			LineItemIDs:   movedIDs,
		},
	}); err != nil {
		return nil, err
	}

	return &SplitResult{
		SourceOrderID: source.ID,
		TargetOrderID: target.ID,
		TargetCreated: created,
		LineItemIDs:   movedIDs,
		SourceTotal:   sourceTotal,
		TargetTotal:   targetTotal,
	}, nil
}

// Merge folds the source orders into the target. Sources keep their rows
// for history but end up cancelled with merged_into set and no lines.
func (s *service) Merge(ctx context.Context, input MergeInput) (*MergeResult, error) {
	if input.TargetOrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target order id required")
	}
	if len(input.SourceOrderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one source order required")
	}
	seen := map[uuid.UUID]struct{}{input.TargetOrderID: {}}
	for _, id := range input.SourceOrderIDs {
		if id == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "source order id required")
		}
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "an order can only be merged once")
		}
		seen[id] = struct{}{}
	}

	var result *MergeResult
	err := s.pending.Do(ctx, optimistic.Op{
		Entity: "order",
		ID:     input.TargetOrderID.String(),
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				result, err = s.merge(ctx, tx, input)
				return err
			})
		},
	})
	if err != nil {
		s.logFailure(ctx, input.TargetOrderID, "order merge failed", err)
		return nil, err
	}
	return result, nil
}

func (s *service) merge(ctx context.Context, tx *gorm.DB, input MergeInput) (*MergeResult, error) {
	txRepo := s.repo.WithTx(tx)
	target, err := txRepo.FindOrder(ctx, input.TargetOrderID)
	if err != nil {
		return nil, repo.Lookup(err, "target order not found")
	}
	if !target.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "target order is not pending")
	}

	tableIDs := orderTableIDs(*target)
	linked := make(map[uuid.UUID]struct{}, len(tableIDs))
	for _, id := range tableIDs {
		linked[id] = struct{}{}
	}

	now := s.now()
	var moved int64
	for _, sourceID := range input.SourceOrderIDs {
		source, err := txRepo.FindOrder(ctx, sourceID)
		if err != nil {
			return nil, repo.Lookup(err, "source order not found")
		}
		if !source.Status.IsOpen() {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "source order is not pending").
				WithDetails(map[string]any{"order_id": source.ID, "status": source.Status})
		}
		n, err := txRepo.MoveOrderLineItems(ctx, source.ID, target.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move line items")
		}
		moved += n
		for _, tableID := range orderTableIDs(*source) {
			if _, ok := linked[tableID]; ok {
				continue
			}
			if err := txRepo.LinkOrderTable(ctx, target.ID, tableID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link order table")
			}
			linked[tableID] = struct{}{}
			tableIDs = append(tableIDs, tableID)
		}
		if err := txRepo.MarkMerged(ctx, source.ID, target.ID, now); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retire merged order")
		}
	}

	total, err := recomputeTotal(ctx, txRepo, target.ID)
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrdersMerged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   target.ID,
		Actor:         buildActor(input.Actor),
		Data: payloads.OrdersMergedEvent{
			TargetOrderID:  target.ID,
			SourceOrderIDs: input.SourceOrderIDs,
			TableIDs:       tableIDs,
		},
	}); err != nil {
		return nil, err
	}

	return &MergeResult{OrderID: target.ID, TableIDs: tableIDs, Moved: moved, Total: total}, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*TransferResult, error) {
	if input.OrderID == uuid.Nil || input.ToTableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and destination table required")
	}

	var result *TransferResult
	err := s.pending.Do(ctx, optimistic.Op{
		Entity: "order",
		ID:     input.OrderID.String(),
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				result, err = s.transfer(ctx, tx, input)
				return err
			})
		},
	})
	if err != nil {
		s.logFailure(ctx, input.OrderID, "order transfer failed", err)
		return nil, err
	}
	return result, nil
}

func (s *service) transfer(ctx context.Context, tx *gorm.DB, input TransferInput) (*TransferResult, error) {
	txRepo := s.repo.WithTx(tx)
	order, err := txRepo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, repo.Lookup(err, "order not found")
	}
	if !order.Status.IsOpen() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be transferred")
	}

	current := orderTableIDs(*order)
	from := input.FromTableID
	if from == uuid.Nil {
		if len(current) != 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "from table required for an order on several tables")
		}
		from = current[0]
	}
	onFrom := false
	for _, id := range current {
		if id == input.ToTableID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is already at the destination table")
		}
		if id == from {
			onFrom = true
		}
	}
	if !onFrom {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is not at the given table")
	}

	tables, err := txRepo.TablesByIDs(ctx, []uuid.UUID{from, input.ToTableID})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tables")
	}
	toTable, ok := tables[input.ToTableID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "destination table not found")
	}
	busy, err := txRepo.CountOpenOrdersForTable(ctx, toTable.ID, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open orders")
	}
	if busy > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "destination table already has an open order; merge instead")
	}

	if err := txRepo.UnlinkOrderTable(ctx, order.ID, from); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlink table")
	}
	if err := txRepo.LinkOrderTable(ctx, order.ID, toTable.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link table")
	}
	if err := txRepo.RetableLineItems(ctx, order.ID, from, toTable.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "move line items")
	}
	if err := s.setTableStatus(ctx, tx, txRepo, toTable, enums.TableStatusServing, input.Actor); err != nil {
		return nil, err
	}
	if fromTable, ok := tables[from]; ok {
		if err := s.releaseTables(ctx, tx, txRepo, order.ID, []uuid.UUID{fromTable.ID}, enums.TableStatusNeedsCleaning, input.Actor); err != nil {
			return nil, err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderTransferred,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(input.Actor),
		Data:          payloads.OrderTransferredEvent{OrderID: order.ID, FromTableID: from, ToTableID: toTable.ID},
	}); err != nil {
		return nil, err
	}
	return &TransferResult{OrderID: order.ID, FromTableID: from, ToTableID: toTable.ID}, nil
}

func (s *service) ReturnedQuantity(ctx context.Context, orderID uuid.UUID) (int, error) {
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if _, err := s.repo.FindOrder(ctx, orderID); err != nil {
		return 0, repo.Lookup(err, "order not found")
	}
	total, err := s.repo.ReturnedQuantity(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum returned quantity")
	}
	return int(total), nil
}

func (s *service) openOrderAt(ctx context.Context, txRepo Repository, tableID uuid.UUID, actor *Actor) (*models.Order, bool, error) {
	order, err := txRepo.FindOpenOrderForTable(ctx, tableID)
	if err == nil {
		return order, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open order")
	}
	order = &models.Order{ID: uuid.New(), Status: enums.OrderStatusPending, Total: decimal.Zero}
	if actor != nil && actor.UserID != uuid.Nil {
		id := actor.UserID
		order.CreatedBy = &id
	}
	if err := txRepo.CreateOrder(ctx, order); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	if err := txRepo.LinkOrderTable(ctx, order.ID, tableID); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link order table")
	}
	return order, true, nil
}

func (s *service) logFailure(ctx context.Context, orderID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), msg, err)
}

// recomputeTotal stores the sum of non-returned line totals on the order.
func recomputeTotal(ctx context.Context, txRepo Repository, orderID uuid.UUID) (decimal.Decimal, error) {
	lines, err := txRepo.OrderLineItems(ctx, orderID)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	total := displayTotal(lines)
	if err := txRepo.UpdateOrderTotal(ctx, orderID, total); err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order total")
	}
	return total, nil
}

func displayTotal(lines []models.OrderLineItem) decimal.Decimal {
	totals := make([]decimal.Decimal, 0, len(lines))
	for _, line := range lines {
		totals = append(totals, line.LineTotal())
	}
	return money.Sum(totals...)
}

func unservedNames(lines []models.OrderLineItem) []string {
	var names []string
	for _, line := range lines {
		if line.Remaining() > 0 && line.Status != enums.LineItemStatusServed {
			names = append(names, line.Name)
		}
	}
	return names
}

func orderTableIDs(order models.Order) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(order.Tables))
	for _, link := range order.Tables {
		ids = append(ids, link.TableID)
	}
	return ids
}

func tableRefs(ids []uuid.UUID, tables map[uuid.UUID]models.DiningTable) []TableRef {
	refs := make([]TableRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, TableRef{ID: id, Name: tables[id].Name})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}

func buildActor(actor *Actor) *outbox.ActorRef {
	if actor == nil {
		return nil
	}
	return outbox.ActorFor(actor.UserID, actor.Role)
}
