// Package optimistic runs mutations whose effect is shown before the write
// is confirmed. Every operation is keyed by entity and id: while one is in
// flight a second one for the same key is rejected, and a failed write
// undoes its local effect the same way everywhere.
package optimistic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
)

const defaultTTL = 30 * time.Second

// Store guards keys across callers. Acquire reports false when the key is
// already held; Release only frees a key still held by token.
type Store interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// Op is one tracked mutation. Apply is optional and returns the func that
// undoes its local effect. Commit performs the authoritative write.
type Op struct {
	Entity string
	ID     string
	Apply  func() (undo func())
	Commit func(ctx context.Context) error
}

type Tracker struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.OptimisticMetrics
}

// NewTracker builds a tracker. ttl bounds how long a crashed holder can
// block a key; zero uses 30s.
func NewTracker(store Store, ttl time.Duration, m *metrics.OptimisticMetrics) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("optimistic store required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Tracker{store: store, ttl: ttl, metrics: m}, nil
}

// Do applies op locally, commits it and undoes the local effect when the
// commit fails or panics. It returns an OPERATION_IN_FLIGHT error without
// running anything when another op holds the same key.
func (t *Tracker) Do(ctx context.Context, op Op) (err error) {
	if op.Entity == "" || op.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation key is required")
	}
	if op.Commit == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation commit is required")
	}

	key := op.Entity + ":" + op.ID
	token := uuid.NewString()
	acquired, err := t.store.Acquire(ctx, key, token, t.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to register pending operation")
	}
	if !acquired {
		t.metrics.Observe(op.Entity, metrics.OutcomeRejected)
		return pkgerrors.New(pkgerrors.CodeInFlight, "an update for this item is already in progress").
			WithDetails(map[string]any{"entity": op.Entity, "id": op.ID})
	}
	t.metrics.Observe(op.Entity, metrics.OutcomeBegun)

	defer func() {
		// release even if ctx is already cancelled
		_ = t.store.Release(context.WithoutCancel(ctx), key, token)
	}()

	undo := func() {}
	if op.Apply != nil {
		if u := op.Apply(); u != nil {
			undo = u
		}
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		undo()
		t.metrics.Observe(op.Entity, metrics.OutcomeReverted)
	}()

	if err := op.Commit(ctx); err != nil {
		return err
	}
	committed = true
	t.metrics.Observe(op.Entity, metrics.OutcomeCommitted)
	return nil
}
