package realtime

import (
	"context"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Subscription is an open stream for one watched table.
type Subscription interface {
	Close() error
}

// Source opens change streams. Implementations deliver every change for the
// table to handle until the subscription is closed or ctx ends.
type Source interface {
	Subscribe(ctx context.Context, table enums.WatchedTable, handle Handler) (Subscription, error)
}

// Broadcaster publishes changes to the transport a Source reads from. The
// outbox publisher uses it when the database does not emit notifications
// itself.
type Broadcaster interface {
	Broadcast(ctx context.Context, change Change) error
}

type subscriptionFunc func() error

func (f subscriptionFunc) Close() error { return f() }
