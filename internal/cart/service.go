package cart

import (
	"context"
	"errors"
	"fmt"

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
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingOps interface {
	Do(ctx context.Context, op optimistic.Op) error
}

// Service manages the per-table cart and sends it to the kitchen.
type Service interface {
	List(ctx context.Context, tableID uuid.UUID) (*View, error)
	Add(ctx context.Context, input AddInput) (*View, error)
	UpdateQuantity(ctx context.Context, input UpdateQuantityInput) (*View, error)
	Remove(ctx context.Context, tableID, cartItemID uuid.UUID, actor *Actor) (*View, error)
	Clear(ctx context.Context, tableID uuid.UUID, actor *Actor) error
	SubmitToKitchen(ctx context.Context, input SubmitInput) (*SubmitResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	pending pendingOps
	logg    *logger.Logger
}

func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, pending pendingOps, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
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
	return &service{repo: repo, tx: tx, outbox: emitter, pending: pending, logg: logg}, nil
}

func (s *service) List(ctx context.Context, tableID uuid.UUID) (*View, error) {
	if tableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id required")
	}
	table, err := s.repo.FindTable(ctx, tableID)
	if err != nil {
		return nil, repo.Lookup(err, "table not found")
	}
	return s.view(ctx, s.repo, table)
}

func (s *service) Add(ctx context.Context, input AddInput) (*View, error) {
	if input.TableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id required")
	}
	if input.MenuItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id required")
	}
	if err := validateQuantity(input.Quantity); err != nil {
		return nil, err
	}

	var out *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		table, err := txRepo.FindTable(ctx, input.TableID)
		if err != nil {
			return repo.Lookup(err, "table not found")
		}
		menu, err := txRepo.MenuItemsByIDs(ctx, []uuid.UUID{input.MenuItemID})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
		}
		item, ok := menu[input.MenuItemID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
		}
		if !item.Available() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s is not available", item.Name)
		}

		existing, err := txRepo.ListByTable(ctx, table.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		signature := input.Customizations.Signature()
		var changedID uuid.UUID
		for _, line := range existing {
			if line.MenuItemID != item.ID || line.Customizations.Signature() != signature {
				continue
			}
			quantity := line.Quantity + input.Quantity
			if err := validateQuantity(quantity); err != nil {
				return err
			}
			if err := txRepo.UpdateItemQuantity(ctx, line.ID, quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
			}
			changedID = line.ID
			break
		}
		op := enums.ChangeOpUpdate
		if changedID == uuid.Nil {
			created := &models.CartItem{
				ID:             uuid.New(),
				TableID:        table.ID,
				MenuItemID:     item.ID,
				Quantity:       input.Quantity,
				Customizations: input.Customizations,
				AddedBy:        actorID(input.Actor),
			}
			if err := txRepo.CreateItem(ctx, created); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
			}
			changedID = created.ID
			op = enums.ChangeOpInsert
		}
		if err := s.emitCartChanged(ctx, tx, table.ID, &changedID, op, input.Actor); err != nil {
			return err
		}

		out, err = s.view(ctx, txRepo, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) UpdateQuantity(ctx context.Context, input UpdateQuantityInput) (*View, error) {
	if input.TableID == uuid.Nil || input.CartItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id and cart item id required")
	}
	if err := validateQuantity(input.Quantity); err != nil {
		return nil, err
	}

	var out *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		table, item, err := s.loadOwnedItem(ctx, txRepo, input.TableID, input.CartItemID)
		if err != nil {
			return err
		}
		if err := txRepo.UpdateItemQuantity(ctx, item.ID, input.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		if err := s.emitCartChanged(ctx, tx, table.ID, &item.ID, enums.ChangeOpUpdate, input.Actor); err != nil {
			return err
		}
		out, err = s.view(ctx, txRepo, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Remove(ctx context.Context, tableID, cartItemID uuid.UUID, actor *Actor) (*View, error) {
	if tableID == uuid.Nil || cartItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id and cart item id required")
	}

	var out *View
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		table, item, err := s.loadOwnedItem(ctx, txRepo, tableID, cartItemID)
		if err != nil {
			return err
		}
		if _, err := txRepo.DeleteItem(ctx, item.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
		}
		if err := s.emitCartChanged(ctx, tx, table.ID, &item.ID, enums.ChangeOpDelete, actor); err != nil {
			return err
		}
		out, err = s.view(ctx, txRepo, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) Clear(ctx context.Context, tableID uuid.UUID, actor *Actor) error {
	if tableID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "table id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindTable(ctx, tableID); err != nil {
			return repo.Lookup(err, "table not found")
		}
		removed, err := txRepo.DeleteByTable(ctx, tableID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}
		if removed == 0 {
			return nil
		}
		return s.emitCartChanged(ctx, tx, tableID, nil, enums.ChangeOpDelete, actor)
	})
}

// SubmitToKitchen promotes the table's cart into its open order in one
// transaction: the order is found or created, the lines are inserted at
// current menu prices, the cart is emptied, the table is marked serving and
// the order total is recomputed. A second submit for the same table while
// one is running is rejected.
func (s *service) SubmitToKitchen(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if input.TableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id required")
	}

	var result *SubmitResult
	err := s.pending.Do(ctx, optimistic.Op{
		Entity: "cart",
		ID:     input.TableID.String(),
		Commit: func(ctx context.Context) error {
			return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				var err error
				result, err = s.submit(ctx, tx, input)
				return err
			})
		},
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithTableID(ctx, input.TableID.String()), "send to kitchen failed", err)
		}
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"table_id":   input.TableID.String(),
			"order_id":   result.OrderID.String(),
			"line_count": len(result.LineItemIDs),
		})
		s.logg.Info(logCtx, "cart sent to kitchen")
	}
	return result, nil
}

func (s *service) submit(ctx context.Context, tx *gorm.DB, input SubmitInput) (*SubmitResult, error) {
	txRepo := s.repo.WithTx(tx)

	table, err := txRepo.FindTable(ctx, input.TableID)
	if err != nil {
		return nil, repo.Lookup(err, "table not found")
	}
	cartItems, err := txRepo.ListByTable(ctx, table.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(cartItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}

	menu, err := txRepo.MenuItemsByIDs(ctx, menuIDs(cartItems))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}
	var unavailable []string
	for _, item := range cartItems {
		entry, ok := menu[item.MenuItemID]
		if !ok || !entry.Available() {
			name := entry.Name
			if !ok {
				name = item.MenuItemID.String()
			}
			unavailable = append(unavailable, name)
		}
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "some items are no longer available").
			WithDetails(map[string]any{"unavailable": unavailable})
	}

	order, created, err := s.openOrder(ctx, txRepo, table.ID, input.Actor)
	if err != nil {
		return nil, err
	}

	lines := make([]models.OrderLineItem, 0, len(cartItems))
	lineIDs := make([]uuid.UUID, 0, len(cartItems))
	for _, item := range cartItems {
		entry := menu[item.MenuItemID]
		line := models.OrderLineItem{
			ID:             uuid.New(),
			OrderID:        order.ID,
			TableID:        table.ID,
			MenuItemID:     entry.ID,
			Name:           entry.Name,
			UnitPrice:      entry.Price,
			UnitCost:       entry.Cost,
			Quantity:       item.Quantity,
			Status:         enums.LineItemStatusWaiting,
			Customizations: item.Customizations,
		}
		lines = append(lines, line)
		lineIDs = append(lineIDs, line.ID)
	}
	if err := txRepo.CreateLineItems(ctx, lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order items")
	}
	if _, err := txRepo.DeleteByTable(ctx, table.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}

	total, err := recomputeTotal(ctx, txRepo, order.ID)
	if err != nil {
		return nil, err
	}

	eventType := enums.EventOrderItemsAdded
	if created {
		eventType = enums.EventOrderCreated
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         buildActor(input.Actor),
		Data: payloads.OrderItemsEvent{
			OrderID:     order.ID,
			TableID:     table.ID,
			TableName:   table.Name,
			LineItemIDs: lineIDs,
			ItemCount:   totalQuantity(cartItems),
			OrderTotal:  total,
		},
	}); err != nil {
		return nil, err
	}

	if table.Status != enums.TableStatusServing {
		if err := txRepo.UpdateTableStatus(ctx, table.ID, enums.TableStatusServing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update table status")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTableStatusChanged,
			AggregateType: enums.AggregateTable,
			AggregateID:   table.ID,
			Actor:         buildActor(input.Actor),
			Data: payloads.TableStatusChangedEvent{
				TableID: table.ID,
				Name:    table.Name,
				From:    table.Status,
				To:      enums.TableStatusServing,
			},
		}); err != nil {
			return nil, err
		}
	}

	if err := s.emitCartChanged(ctx, tx, table.ID, nil, enums.ChangeOpDelete, input.Actor); err != nil {
		return nil, err
	}

	return &SubmitResult{
		OrderID:      order.ID,
		OrderCreated: created,
		LineItemIDs:  lineIDs,
		OrderTotal:   total,
	}, nil
}

func (s *service) openOrder(ctx context.Context, txRepo Repository, tableID uuid.UUID, actor *Actor) (*models.Order, bool, error) {
	order, err := txRepo.FindOpenOrderForTable(ctx, tableID)
	if err == nil {
		return order, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open order")
	}

	order = &models.Order{
		ID:        uuid.New(),
		Status:    enums.OrderStatusPending,
		Total:     decimal.Zero,
		CreatedBy: actorID(actor),
	}
	if err := txRepo.CreateOrder(ctx, order); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	if err := txRepo.LinkOrderTable(ctx, order.ID, tableID); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link order table")
	}
	return order, true, nil
}

func (s *service) loadOwnedItem(ctx context.Context, txRepo Repository, tableID, itemID uuid.UUID) (*models.DiningTable, *models.CartItem, error) {
	table, err := txRepo.FindTable(ctx, tableID)
	if err != nil {
		return nil, nil, repo.Lookup(err, "table not found")
	}
	item, err := txRepo.FindItem(ctx, itemID)
	if err != nil {
		return nil, nil, repo.Lookup(err, "cart item not found")
	}
	if item.TableID != table.ID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return table, item, nil
}

func (s *service) view(ctx context.Context, r Repository, table *models.DiningTable) (*View, error) {
	items, err := r.ListByTable(ctx, table.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	menu, err := r.MenuItemsByIDs(ctx, menuIDs(items))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}

	view := &View{TableID: table.ID, TableName: table.Name, Lines: make([]Line, 0, len(items))}
	totals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		entry := menu[item.MenuItemID]
		line := Line{
			ID:             item.ID,
			MenuItemID:     item.MenuItemID,
			Name:           entry.Name,
			Quantity:       item.Quantity,
			UnitPrice:      entry.Price,
			LineTotal:      money.LineTotal(entry.Price, item.Quantity),
			Available:      entry.ID != uuid.Nil && entry.Available(),
			Customizations: item.Customizations,
		}
		view.Lines = append(view.Lines, line)
		totals = append(totals, line.LineTotal)
	}
	view.Total = money.Sum(totals...)
	view.TotalLabel = money.FormatVND(view.Total)
	return view, nil
}

func (s *service) emitCartChanged(ctx context.Context, tx *gorm.DB, tableID uuid.UUID, itemID *uuid.UUID, op enums.ChangeOp, actor *Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCartChanged,
		AggregateType: enums.AggregateCart,
		AggregateID:   tableID,
		Actor:         buildActor(actor),
		Data:          payloads.CartChangedEvent{TableID: tableID, CartItemID: itemID, Op: op},
	})
}

// recomputeTotal stores the sum of non-returned line totals on the order.
func recomputeTotal(ctx context.Context, txRepo Repository, orderID uuid.UUID) (decimal.Decimal, error) {
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

func validateQuantity(quantity int) error {
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if quantity > maxLineQuantity {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity cannot exceed %d", maxLineQuantity)
	}
	return nil
}

func menuIDs(items []models.CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.MenuItemID]; ok {
			continue
		}
		seen[item.MenuItemID] = struct{}{}
		ids = append(ids, item.MenuItemID)
	}
	return ids
}

func totalQuantity(items []models.CartItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
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
