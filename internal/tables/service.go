// Package tables serves the floor plan: table tiles with their open orders
// and the manual status changes staff make between guests.
package tables

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/pkg/db"
	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/money"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

const maxSeats = 50

type tableRepository interface {
	List(ctx context.Context) ([]models.DiningTable, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.DiningTable, error)
	Create(ctx context.Context, table *models.DiningTable) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.TableStatus) (bool, error)
	OpenOrders(ctx context.Context) ([]models.Order, error)
	CountOpenOrders(ctx context.Context, tableID uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes floor plan operations.
type Service interface {
	List(ctx context.Context) ([]TableView, error)
	Create(ctx context.Context, input CreateTableInput) (*TableView, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*TableView, error)
}

type service struct {
	repo   tableRepository
	bind   func(tx *gorm.DB) tableRepository
	tx     txRunner
	outbox outbox.Emitter
	logg   *logger.Logger
}

// NewService builds a table service. Status changes run inside tx with the
// repository rebound to the transaction.
func NewService(repo *Repository, tx txRunner, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("table repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		repo:   repo,
		bind:   func(tx *gorm.DB) tableRepository { return repo.WithTx(tx) },
		tx:     tx,
		outbox: emitter,
		logg:   logg,
	}, nil
}

var statusLabels = map[enums.TableStatus]string{
	enums.TableStatusEmpty:         "Trống",
	enums.TableStatusServing:       "Đang phục vụ",
	enums.TableStatusNeedsCleaning: "Cần dọn",
}

// manualTransitions lists the moves staff may make by hand. Orders move
// tables to serving and needs_cleaning on their own.
var manualTransitions = map[enums.TableStatus][]enums.TableStatus{
	enums.TableStatusEmpty:         {enums.TableStatusServing},
	enums.TableStatusServing:       {enums.TableStatusNeedsCleaning, enums.TableStatusEmpty},
	enums.TableStatusNeedsCleaning: {enums.TableStatusEmpty},
}

// StatusLabel is the floor plan caption for a table status.
func StatusLabel(status enums.TableStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

// CanTransition reports whether staff may move a table from one status to
// another. It does not look at open orders.
func CanTransition(from, to enums.TableStatus) bool {
	for _, next := range manualTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *service) List(ctx context.Context) ([]TableView, error) {
	tables, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tables")
	}
	orders, err := s.repo.OpenOrders(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open orders")
	}

	byTable := make(map[uuid.UUID][]OpenOrder)
	for _, order := range orders {
		summary := summarize(order)
		for _, link := range order.Tables {
			byTable[link.TableID] = append(byTable[link.TableID], summary)
		}
	}

	out := make([]TableView, 0, len(tables))
	for _, table := range tables {
		out = append(out, toView(table, byTable[table.ID]))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, input CreateTableInput) (*TableView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table name is required")
	}
	seats := input.Seats
	if seats == 0 {
		seats = 4
	}
	if seats < 1 || seats > maxSeats {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "seats must be between 1 and %d", maxSeats)
	}

	table := &models.DiningTable{Name: name, Seats: seats, Status: enums.TableStatusEmpty}
	if err := s.repo.Create(ctx, table); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a table with this name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create table")
	}
	view := toView(*table, nil)
	return &view, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*TableView, error) {
	if input.TableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id is required")
	}
	if !input.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid table status")
	}

	var out *TableView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.bind(tx)
		table, err := txRepo.FindByID(ctx, input.TableID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup table")
		}
		if table.Status == input.To {
			view := toView(*table, nil)
			out = &view
			return nil
		}
		if !CanTransition(table.Status, input.To) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "table status transition not allowed").
				WithDetails(map[string]any{"from": table.Status, "to": input.To})
		}
		if table.Status == enums.TableStatusServing && input.To == enums.TableStatusEmpty {
			open, err := txRepo.CountOpenOrders(ctx, table.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open orders")
			}
			if open > 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "table still has an open order")
			}
		}

		ok, err := txRepo.UpdateStatus(ctx, table.ID, table.Status, input.To)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update table status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "table was changed by someone else")
		}

		var actor *outbox.ActorRef
		if input.Actor != nil {
			actor = outbox.ActorFor(input.Actor.UserID, input.Actor.Role)
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableStatusChanged,
			AggregateType: enums.AggregateTable,
			AggregateID:   table.ID,
			Actor:         actor,
			Data:          payloads.TableStatusChangedEvent{TableID: table.ID, Name: table.Name, From: table.Status, To: input.To},
		}); err != nil {
			return err
		}
		table.Status = input.To
		view := toView(*table, nil)
		out = &view
		return nil
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithTableID(ctx, input.TableID.String()), "table status change rejected: "+err.Error())
		}
		return nil, err
	}
	return out, nil
}

func summarize(order models.Order) OpenOrder {
	summary := OpenOrder{OrderID: order.ID, Status: order.Status, OpenedAt: order.CreatedAt}
	for _, line := range order.Items {
		summary.Total = summary.Total.Add(line.LineTotal())
		summary.ItemCount += line.Remaining()
	}
	summary.TotalLabel = money.FormatVND(summary.Total)
	return summary
}

func toView(table models.DiningTable, orders []OpenOrder) TableView {
	if orders == nil {
		orders = []OpenOrder{}
	}
	return TableView{
		ID:          table.ID,
		Name:        table.Name,
		Seats:       table.Seats,
		Status:      table.Status,
		StatusLabel: StatusLabel(table.Status),
		OpenOrders:  orders,
	}
}
