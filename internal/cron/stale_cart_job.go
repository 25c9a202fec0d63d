package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tablepos-backend/internal/cart"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox"
	"github.com/angelmondragon/tablepos-backend/pkg/outbox/payloads"
)

const defaultCartStaleAfter = 12 * time.Hour

type StaleCartJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Carts       staleCartReader
	Outbox      outbox.Emitter
	StaleAfter  time.Duration
	RepoFactory cartRepoFactory
}

type staleCartReader interface {
	StaleTables(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type cartDeleter interface {
	DeleteByTable(ctx context.Context, tableID uuid.UUID) (int64, error)
}

type cartRepoFactory func(tx *gorm.DB) cartDeleter

func defaultCartRepo(tx *gorm.DB) cartDeleter {
	return cart.NewRepository(tx)
}

// NewStaleCartJob clears carts nobody has touched for StaleAfter, so a
// forgotten draft does not greet the next party at the table.
func NewStaleCartJob(params StaleCartJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultCartStaleAfter
	}
	factory := params.RepoFactory
	if factory == nil {
		factory = defaultCartRepo
	}
	return &staleCartJob{
		logg:       params.Logger,
		db:         params.DB,
		carts:      params.Carts,
		outbox:     params.Outbox,
		staleAfter: staleAfter,
		factory:    factory,
		now:        time.Now,
	}, nil
}

type staleCartJob struct {
	logg       *logger.Logger
	db         txRunner
	carts      staleCartReader
	outbox     outbox.Emitter
	staleAfter time.Duration
	factory    cartRepoFactory
	now        func() time.Time
}

func (j *staleCartJob) Name() string { return "stale-cart-cleanup" }

func (j *staleCartJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	tables, err := j.carts.StaleTables(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale carts: %w", err)
	}

	var (
		errs         error
		itemsDeleted int64
		cleared      int
	)
	for _, tableID := range tables {
		removed, err := j.clearTable(ctx, tableID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("table %s: %w", tableID, err))
			continue
		}
		itemsDeleted += removed
		cleared++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"stale_tables":   len(tables),
		"tables_cleared": cleared,
		"items_deleted":  itemsDeleted,
	})
	j.logg.Info(logCtx, "stale cart cleanup complete")
	return errs
}

func (j *staleCartJob) clearTable(ctx context.Context, tableID uuid.UUID) (int64, error) {
	var removed int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.factory(tx).DeleteByTable(ctx, tableID)
		if err != nil {
			return err
		}
		removed = rows
		if rows == 0 {
			return nil
		}
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCartChanged,
			AggregateType: enums.AggregateCart,
			AggregateID:   tableID,
			Data:          payloads.CartChangedEvent{TableID: tableID, Op: enums.ChangeOpDelete},
		})
	})
	return removed, err
}
