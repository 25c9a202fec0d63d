package kitchen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/repo"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/optimistic"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

const defaultLateAfter = 15 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingOps interface {
	Do(ctx context.Context, op optimistic.Op) error
}

// Service exposes the kitchen views and the kitchen status actions.
type Service interface {
	Board(ctx context.Context, filter BoardFilter) (*BoardView, error)
	Summary(ctx context.Context) ([]ItemSummary, error)
	Detail(ctx context.Context, name string) (*ItemDetail, error)
	Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error)
	CompleteOrder(ctx context.Context, input CompleteOrderInput) (*CompleteOrderResult, error)
	StartAll(ctx context.Context, input StartAllInput) (*StartAllResult, error)
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outbox.Emitter
	Pending   pendingOps
	Board     *Board
	Logger    *logger.Logger
	LateAfter time.Duration
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outbox.Emitter
	pending   pendingOps
	board     *Board
	logg      *logger.Logger
	lateAfter time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("kitchen repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Pending == nil {
		return nil, fmt.Errorf("pending operation tracker required")
	}
	if params.Board == nil {
		return nil, fmt.Errorf("kitchen board required")
	}
	lateAfter := params.LateAfter
	if lateAfter <= 0 {
		lateAfter = defaultLateAfter
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		pending:   params.Pending,
		board:     params.Board,
		logg:      params.Logger,
		lateAfter: lateAfter,
		now:       time.Now,
	}, nil
}

func (s *service) Board(ctx context.Context, filter BoardFilter) (*BoardView, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	rows = filterRows(rows, filter)

	now := s.now()
	tickets := GroupTickets(rows)
	views := make([]TicketView, 0, len(tickets))
	for _, ticket := range tickets {
		view := TicketView{
			Ticket:  ticket,
			Elapsed: ElapsedLabel(ticket.OldestAt, now),
			Late:    !ticket.Done() && now.Sub(ticket.OldestAt) > s.lateAfter,
		}
		for _, line := range ticket.Lines {
			view.Entries = append(view.Entries, DisplayEntries(line)...)
		}
		views = append(views, view)
	}

	return &BoardView{
		Tickets:     views,
		Summary:     Summarize(rows),
		Tables:      GroupByTable(rows),
		GeneratedAt: now.UTC(),
	}, nil
}

func (s *service) Summary(ctx context.Context) ([]ItemSummary, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(rows), nil
}

func (s *service) Detail(ctx context.Context, name string) (*ItemDetail, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
	}
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}

	var matching []Row
	for _, row := range rows {
		if row.Name == name && Visible(row) {
			matching = append(matching, row)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool { return matching[i].CreatedAt.Before(matching[j].CreatedAt) })

	detail := &ItemDetail{Name: name, Tables: GroupByTable(matching), Lines: []DetailLine{}}
	if summary := Summarize(matching); len(summary) == 1 {
		detail.Counts = summary[0].StatusCounts
	}
	now := s.now()
	for _, row := range matching {
		detail.Lines = append(detail.Lines, DetailLine{
			Row:     row,
			Entries: DisplayEntries(row),
			Elapsed: ElapsedLabel(row.CreatedAt, now),
		})
	}
	return detail, nil
}

// Transition moves one line item. The board shows the new status at once
// and falls back to the previous one if the write is rejected.
func (s *service) Transition(ctx context.Context, input TransitionInput) (*TransitionResult, error) {
	if input.LineItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "line item id required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown line item status %q", input.To)
	}

	item, err := s.repo.FindLineItem(ctx, input.LineItemID)
	if err != nil {
		return nil, repo.Lookup(err, "line item not found")
	}
	if err := ValidateTransition(item.Status, input.To); err != nil {
		return nil, err
	}
	if item.Remaining() == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "line item was fully returned")
	}

	from := item.Status
	err = s.pending.Do(ctx, optimistic.Op{
		Entity: "line_item",
		ID:     item.ID.String(),
		Apply: func() func() {
			return s.board.SetLineStatus(item.OrderID, []uuid.UUID{item.ID}, input.To)
		},
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				txRepo := s.repo.WithTx(tx)
				if err := s.ensureOrderOpen(ctx, txRepo, item.OrderID); err != nil {
					return err
				}
				current, err := txRepo.FindLineItem(ctx, item.ID)
				if err != nil {
					return repo.Lookup(err, "line item not found")
				}
				if current.Remaining() == 0 {
					return pkgerrors.New(pkgerrors.CodeStateConflict, "line item was fully returned")
				}
				return s.moveLine(ctx, tx, txRepo, *current, from, input.To, input.Actor)
			})
		},
	})
	if err != nil {
		s.logFailure(ctx, item.OrderID, "kitchen transition failed", err)
		return nil, err
	}

	return &TransitionResult{
		LineItemID: item.ID,
		OrderID:    item.OrderID,
		From:       from,
		To:         input.To,
		Label:      Label(input.To),
		Color:      Color(input.To),
	}, nil
}

// CompleteOrder is the bulk "mark all done": every started line of the
// order is finished and handed out, and the floor gets a notification.
// Lines nobody has started block the action.
func (s *service) CompleteOrder(ctx context.Context, input CompleteOrderInput) (*CompleteOrderResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, repo.Lookup(err, "order not found")
	}
	if !kitchenOpen(order.Status) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s", order.Status)
	}

	var serve []models.OrderLineItem
	notStarted := 0
	for _, line := range order.Items {
		if line.Remaining() == 0 || line.Status == enums.LineItemStatusServed {
			continue
		}
		if line.Status == enums.LineItemStatusWaiting {
			notStarted++
			continue
		}
		serve = append(serve, line)
	}
	if notStarted > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%d item(s) have not been started", notStarted).
			WithDetails(map[string]any{"waiting": notStarted})
	}
	if len(serve) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "nothing left to serve")
	}

	lineIDs := make([]uuid.UUID, 0, len(serve))
	quantity := 0
	for _, line := range serve {
		lineIDs = append(lineIDs, line.ID)
		quantity += line.Remaining()
	}

	result := &CompleteOrderResult{OrderID: order.ID, ServedLineIDs: lineIDs}
	err = s.pending.Do(ctx, optimistic.Op{
		Entity: "order",
		ID:     order.ID.String(),
		Apply: func() func() {
			return s.board.SetLineStatus(order.ID, lineIDs, enums.LineItemStatusServed)
		},
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				txRepo := s.repo.WithTx(tx)
				for _, line := range serve {
					status := line.Status
					if status == enums.LineItemStatusInProgress {
						if err := s.moveLine(ctx, tx, txRepo, line, status, enums.LineItemStatusCompleted, input.Actor); err != nil {
							return err
						}
						status = enums.LineItemStatusCompleted
					}
					if err := s.moveLine(ctx, tx, txRepo, line, status, enums.LineItemStatusServed, input.Actor); err != nil {
						return err
					}
				}

				notification, err := s.notifyFloor(ctx, tx, txRepo, order, quantity)
				if err != nil {
					return err
				}
				result.NotificationID = notification.ID
				return nil
			})
		},
	})
	if err != nil {
		s.logFailure(ctx, order.ID, "kitchen complete order failed", err)
		return nil, err
	}
	return result, nil
}

// StartAll moves every waiting line of one menu item into in_progress. Lines
// that changed concurrently are skipped rather than failing the batch.
func (s *service) StartAll(ctx context.Context, input StartAllInput) (*StartAllResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
	}

	candidates, err := s.repo.FindWaitingLineItemsByName(ctx, name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load waiting items")
	}
	result := &StartAllResult{Name: name, StartedLineIDs: []uuid.UUID{}}
	if len(candidates) == 0 {
		return result, nil
	}

	byOrder := make(map[uuid.UUID][]uuid.UUID)
	for _, line := range candidates {
		byOrder[line.OrderID] = append(byOrder[line.OrderID], line.ID)
	}

	err = s.pending.Do(ctx, optimistic.Op{
		Entity: "menu_item_name",
		ID:     name,
		Apply: func() func() {
			restores := make([]func(), 0, len(byOrder))
			for orderID, ids := range byOrder {
				restores = append(restores, s.board.SetLineStatus(orderID, ids, enums.LineItemStatusInProgress))
			}
			return func() {
				for _, restore := range restores {
					restore()
				}
			}
		},
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				txRepo := s.repo.WithTx(tx)
				result.StartedLineIDs = result.StartedLineIDs[:0]
				result.Quantity = 0
				for _, line := range candidates {
					current, err := txRepo.FindLineItem(ctx, line.ID)
					if errors.Is(err, gorm.ErrRecordNotFound) {
						continue
					}
					if err != nil {
						return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload line item")
					}
					if current.Status != enums.LineItemStatusWaiting || current.Remaining() == 0 {
						continue
					}
					err = s.moveLine(ctx, tx, txRepo, *current, enums.LineItemStatusWaiting, enums.LineItemStatusInProgress, input.Actor)
					if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
						continue
					}
					if err != nil {
						return err
					}
					result.StartedLineIDs = append(result.StartedLineIDs, current.ID)
					result.Quantity += current.Remaining()
				}
				return nil
			})
		},
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "item_name", name), "kitchen start all failed", err)
		}
		return nil, err
	}

	// Skipped lines were shown as started; reload their orders.
	started := make(map[uuid.UUID]struct{}, len(result.StartedLineIDs))
	for _, id := range result.StartedLineIDs {
		started[id] = struct{}{}
	}
	var stale []uuid.UUID
	for orderID, ids := range byOrder {
		for _, id := range ids {
			if _, ok := started[id]; !ok {
				stale = append(stale, orderID)
				break
			}
		}
	}
	if len(stale) > 0 {
		s.board.InvalidateOrders(stale...)
	}
	return result, nil
}

func (s *service) rows(ctx context.Context) ([]Row, error) {
	rows, err := s.board.Rows(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load kitchen board")
	}
	return rows, nil
}

func (s *service) ensureOrderOpen(ctx context.Context, txRepo Repository, orderID uuid.UUID) error {
	order, err := txRepo.FindOrder(ctx, orderID)
	if err != nil {
		return repo.Lookup(err, "order not found")
	}
	if !kitchenOpen(order.Status) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s", order.Status)
	}
	return nil
}

// moveLine writes one legal status step and queues its event.
func (s *service) moveLine(ctx context.Context, tx *gorm.DB, txRepo Repository, line models.OrderLineItem, from, to enums.LineItemStatus, actor *Actor) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	at := s.now().UTC()
	ok, err := txRepo.UpdateLineItemStatus(ctx, line.ID, from, to, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update line item status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "line item was changed by someone else").
			WithDetails(map[string]any{"line_item_id": line.ID, "expected": from})
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventLineItemStatusChanged,
		AggregateType: enums.AggregateLineItem,
		AggregateID:   line.ID,
		Actor:         buildActor(actor),
		Data: payloads.LineItemStatusChangedEvent{
			LineItemID: line.ID,
			OrderID:    line.OrderID,
			TableID:    line.TableID,
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			From:       from,
			To:         to,
			Quantity:   line.Quantity,
			Remaining:  line.Remaining(),
			ActorID:    actorID(actor),
			ChangedAt:  at,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

func (s *service) notifyFloor(ctx context.Context, tx *gorm.DB, txRepo Repository, order *models.Order, quantity int) (*models.KitchenNotification, error) {
	tableIDs := make([]uuid.UUID, 0, len(order.Tables))
	for _, link := range order.Tables {
		tableIDs = append(tableIDs, link.TableID)
	}
	tables, err := txRepo.TablesByIDs(ctx, tableIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order tables")
	}
	names := make([]string, 0, len(tables))
	for _, id := range tableIDs {
		if table, ok := tables[id]; ok {
			names = append(names, table.Name)
		}
	}
	sort.Strings(names)
	tableName := strings.Join(names, ", ")

	notification := &models.KitchenNotification{
		ID:         uuid.New(),
		OrderID:    &order.ID,
		TableLabel: tableName,
		Message:    fmt.Sprintf("%s: %d món đã sẵn sàng", tableName, quantity),
	}
	if len(tableIDs) > 0 {
		first := tableIDs[0]
		notification.TableID = &first
	}
	if err := txRepo.CreateNotification(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create kitchen notification")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventKitchenNotificationCreated,
		AggregateType: enums.AggregateNotification,
		AggregateID:   notification.ID,
		Data: payloads.KitchenNotificationCreatedEvent{
			NotificationID: notification.ID,
			OrderID:        notification.OrderID,
			TableID:        notification.TableID,
			TableName:      notification.TableLabel,
			Message:        notification.Message,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, err
	}
	return notification, nil
}

func (s *service) logFailure(ctx context.Context, orderID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), msg, err)
}

func filterRows(rows []Row, filter BoardFilter) []Row {
	if filter.TableID == nil && filter.Status == nil {
		return rows
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if filter.TableID != nil && row.TableID != *filter.TableID {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		out = append(out, row)
	}
	return out
}

// kitchenOpen reports whether the kitchen still works on orders in status.
// Guests may pay before their food arrives.
func kitchenOpen(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPending || status == enums.OrderStatusPaid
}

func buildActor(actor *Actor) *outbox.ActorRef {
	if actor == nil {
		return nil
	}
	return outbox.ActorFor(actor.UserID, actor.Role)
}

func actorID(actor *Actor) *uuid.UUID {
	if actor == nil || actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}
