package kitchen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/db/models"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
	"github.com/angelmondragon/tablepos-backend/pkg/realtime"
	"github.com/angelmondragon/tablepos-backend/pkg/synccache"
)

const activeIndexKey = "active"

// WatchedTables are the change streams the board depends on.
var WatchedTables = []enums.WatchedTable{
	enums.WatchedOrders,
	enums.WatchedOrderItems,
	enums.WatchedMenuItems,
	enums.WatchedTables,
}

type changeListener interface {
	ListenMany(tables []enums.WatchedTable, fn realtime.Handler) (func(), error)
}

type BoardOptions struct {
	TTL     time.Duration
	Metrics *metrics.CacheMetrics
	Logger  *logger.Logger
}

// Board is the shared read model behind every kitchen view. Line items are
// cached per order, menu items and tables per id, and the set of active
// orders under one key. Change notifications drop exactly what they touch.
type Board struct {
	repo   Repository
	logg   *logger.Logger
	index  *synccache.Cache[string, []uuid.UUID]
	orders *synccache.Cache[uuid.UUID, []models.OrderLineItem]
	menu   *synccache.Cache[uuid.UUID, models.MenuItem]
	tables *synccache.Cache[uuid.UUID, models.DiningTable]
}

func NewBoard(repo Repository, opts BoardOptions) (*Board, error) {
	if repo == nil {
		return nil, errors.New("kitchen repository required")
	}
	cacheOpts := func(name string) synccache.Options {
		return synccache.Options{Name: name, TTL: opts.TTL, Metrics: opts.Metrics}
	}
	return &Board{
		repo:   repo,
		logg:   opts.Logger,
		index:  synccache.New[string, []uuid.UUID](cacheOpts("kitchen_active_orders")),
		orders: synccache.New[uuid.UUID, []models.OrderLineItem](cacheOpts("kitchen_order_lines")),
		menu:   synccache.New[uuid.UUID, models.MenuItem](cacheOpts("kitchen_menu_items")),
		tables: synccache.New[uuid.UUID, models.DiningTable](cacheOpts("kitchen_tables")),
	}, nil
}

// Attach registers the board on the hub. The returned func detaches it.
func (b *Board) Attach(hub changeListener) (func(), error) {
	return hub.ListenMany(WatchedTables, b.HandleChange)
}

// HandleChange invalidates the entries a change touches.
func (b *Board) HandleChange(change realtime.Change) {
	switch change.Table {
	case enums.WatchedOrders, enums.WatchedOrderItems:
		b.index.Invalidate(activeIndexKey)
		var ids []uuid.UUID
		for _, raw := range change.OrderIDs() {
			if id, err := uuid.Parse(raw); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			b.orders.InvalidateAll()
			return
		}
		b.orders.Invalidate(ids...)
	case enums.WatchedMenuItems:
		if id, err := uuid.Parse(change.RowID); err == nil {
			b.menu.Invalidate(id)
			return
		}
		b.menu.InvalidateAll()
	case enums.WatchedTables:
		var ids []uuid.UUID
		for _, raw := range append([]string{change.RowID}, change.TableIDs...) {
			if id, err := uuid.Parse(raw); err == nil {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			b.tables.InvalidateAll()
			return
		}
		b.tables.Invalidate(ids...)
	}
}

// Rows returns every line of every active order as kitchen rows. Filtering
// for display is left to the aggregation helpers.
func (b *Board) Rows(ctx context.Context) ([]Row, error) {
	orderIDs, err := b.index.Get(ctx, activeIndexKey, func(ctx context.Context) ([]uuid.UUID, error) {
		return b.repo.ActiveOrderIDs(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("load active orders: %w", err)
	}
	if len(orderIDs) == 0 {
		return []Row{}, nil
	}

	lines, err := b.orders.GetMany(ctx, orderIDs, b.repo.LineItemsByOrders)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}

	var menuIDs, tableIDs []uuid.UUID
	seenMenu := make(map[uuid.UUID]struct{})
	seenTable := make(map[uuid.UUID]struct{})
	for _, orderID := range orderIDs {
		for _, line := range lines[orderID] {
			if _, ok := seenMenu[line.MenuItemID]; !ok {
				seenMenu[line.MenuItemID] = struct{}{}
				menuIDs = append(menuIDs, line.MenuItemID)
			}
			if _, ok := seenTable[line.TableID]; !ok {
				seenTable[line.TableID] = struct{}{}
				tableIDs = append(tableIDs, line.TableID)
			}
		}
	}

	menu, err := b.menu.GetMany(ctx, menuIDs, b.repo.MenuItemsByIDs)
	if err != nil {
		return nil, fmt.Errorf("load menu items: %w", err)
	}
	tables, err := b.tables.GetMany(ctx, tableIDs, b.repo.TablesByIDs)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}

	var rows []Row
	for _, orderID := range orderIDs {
		for _, line := range lines[orderID] {
			item, known := menu[line.MenuItemID]
			rows = append(rows, Row{
				LineItemID:       line.ID,
				OrderID:          line.OrderID,
				TableID:          line.TableID,
				TableName:        tables[line.TableID].Name,
				MenuItemID:       line.MenuItemID,
				Name:             line.Name,
				Quantity:         line.Quantity,
				ReturnedQuantity: line.ReturnedQuantity,
				Status:           line.Status,
				Customizations:   line.Customizations,
				Available:        known && item.Available(),
				CreatedAt:        line.CreatedAt,
			})
		}
	}
	return rows, nil
}

// SetLineStatus shows lineIDs of orderID at status before the write lands.
// The returned func puts the previous lines back unless a newer value was
// stored in the meantime.
func (b *Board) SetLineStatus(orderID uuid.UUID, lineIDs []uuid.UUID, status enums.LineItemStatus) func() {
	targets := make(map[uuid.UUID]struct{}, len(lineIDs))
	for _, id := range lineIDs {
		targets[id] = struct{}{}
	}
	restore, _ := b.orders.Update(orderID, func(lines []models.OrderLineItem) []models.OrderLineItem {
		next := make([]models.OrderLineItem, len(lines))
		copy(next, lines)
		for i := range next {
			if _, ok := targets[next[i].ID]; ok {
				next[i].Status = status
			}
		}
		return next
	})
	return restore
}

// InvalidateOrders drops the cached lines of the given orders.
func (b *Board) InvalidateOrders(orderIDs ...uuid.UUID) {
	b.orders.Invalidate(orderIDs...)
}

// Refresh drops everything. Used after reconnecting to the change stream.
func (b *Board) Refresh() {
	b.index.InvalidateAll()
	b.orders.InvalidateAll()
	b.menu.InvalidateAll()
	b.tables.InvalidateAll()
	if b.logg != nil {
		b.logg.Debug(context.Background(), "kitchen board cache cleared")
	}
}
