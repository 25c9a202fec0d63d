package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// NotifyChannel is the channel the row change triggers notify on.
const NotifyChannel = "tp_row_changes"

const pgReconnectDelay = 2 * time.Second

type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PGSource listens on the trigger channel with a single dedicated
// connection and routes each notification to the handlers of its table.
// The connection is opened on the first Subscribe and re-established after
// errors until Close.
type PGSource struct {
	connect func(ctx context.Context) (notifyConn, error)
	logg    *logger.Logger

	mu       sync.Mutex
	handlers map[enums.WatchedTable]map[int]Handler
	nextID   int
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewPGSource(dsn string, logg *logger.Logger) *PGSource {
	return newPGSource(func(ctx context.Context) (notifyConn, error) {
		return pgx.Connect(ctx, dsn)
	}, logg)
}

func newPGSource(connect func(ctx context.Context) (notifyConn, error), logg *logger.Logger) *PGSource {
	return &PGSource{
		connect:  connect,
		logg:     logg,
		handlers: make(map[enums.WatchedTable]map[int]Handler),
	}
}

func (s *PGSource) Subscribe(_ context.Context, table enums.WatchedTable, handle Handler) (Subscription, error) {
	if !table.IsValid() {
		return nil, fmt.Errorf("unknown watched table %q", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(ctx, s.done)
	}

	id := s.nextID
	s.nextID++
	if s.handlers[table] == nil {
		s.handlers[table] = make(map[int]Handler)
	}
	s.handlers[table][id] = handle

	var once sync.Once
	return subscriptionFunc(func() error {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers[table], id)
			s.mu.Unlock()
		})
		return nil
	}), nil
}

// Close stops the listener loop.
func (s *PGSource) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *PGSource) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && s.logg != nil {
			s.logg.Error(ctx, "postgres change listener failed; reconnecting", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pgReconnectDelay):
		}
	}
}

func (s *PGSource) listen(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		change, err := decodeRowPayload([]byte(n.Payload))
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, "dropping malformed row notification: "+err.Error())
			}
			continue
		}
		s.dispatch(change)
	}
}

func (s *PGSource) dispatch(change Change) {
	s.mu.Lock()
	targets := make([]Handler, 0, len(s.handlers[change.Table]))
	for _, h := range s.handlers[change.Table] {
		targets = append(targets, h)
	}
	s.mu.Unlock()

	for _, h := range targets {
		h(change)
	}
}

type rowPayload struct {
	EventID    string    `json:"event_id"`
	Table      string    `json:"table"`
	Op         string    `json:"op"`
	RowID      *string   `json:"row_id"`
	OrderID    *string   `json:"order_id"`
	PrevOrder  *string   `json:"previous_order_id"`
	TableID    *string   `json:"table_id"`
	Status     *string   `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// decodeRowPayload maps the trigger's JSON document to a Change. Rows of the
// orders and tables relations carry their own id as the scope.
func decodeRowPayload(raw []byte) (Change, error) {
	var p rowPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Change{}, fmt.Errorf("decode row payload: %w", err)
	}
	change := Change{
		EventID:    p.EventID,
		Table:      enums.WatchedTable(p.Table),
		Op:         enums.ChangeOp(p.Op),
		RowID:      deref(p.RowID),
		OrderID:    deref(p.OrderID),
		Status:     deref(p.Status),
		OccurredAt: p.OccurredAt,
	}
	if id := deref(p.TableID); id != "" {
		change.TableIDs = []string{id}
	}
	if prev := deref(p.PrevOrder); prev != "" {
		change.RelatedOrderIDs = []string{prev}
	}
	switch change.Table {
	case enums.WatchedOrders:
		change.OrderID = change.RowID
	case enums.WatchedTables:
		change.TableIDs = []string{change.RowID}
	}
	if err := change.Validate(); err != nil {
		return Change{}, err
	}
	return change, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
