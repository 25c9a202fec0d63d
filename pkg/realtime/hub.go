package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
	"go.uber.org/multierr"
)

const defaultDedupeWindow = 2 * time.Minute

// HubOptions configures a Hub. Zero values are usable.
type HubOptions struct {
	// DedupeWindow is how long an event id is remembered. Sources are
	// at-least-once, so a redelivered change inside the window is dropped.
	DedupeWindow time.Duration
	Metrics      *metrics.RealtimeMetrics
	Logger       *logger.Logger
}

// Hub multiplexes listeners over a single source subscription per watched
// table. The subscription is opened by the first listener and closed when
// the last one leaves.
type Hub struct {
	source  Source
	window  time.Duration
	metrics *metrics.RealtimeMetrics
	logg    *logger.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	feeds  map[enums.WatchedTable]*feed
	nextID int
	closed bool

	seenMu    sync.Mutex
	seen      map[string]time.Time
	lastPrune time.Time
}

type feed struct {
	sub       Subscription
	listeners map[int]Handler
}

func NewHub(source Source, opts HubOptions) (*Hub, error) {
	if source == nil {
		return nil, errors.New("realtime source required")
	}
	window := opts.DedupeWindow
	if window <= 0 {
		window = defaultDedupeWindow
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		source:  source,
		window:  window,
		metrics: opts.Metrics,
		logg:    opts.Logger,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		feeds:   make(map[enums.WatchedTable]*feed),
		seen:    make(map[string]time.Time),
	}, nil
}

// Listen registers fn for changes on table. The returned func detaches it.
func (h *Hub) Listen(table enums.WatchedTable, fn Handler) (func(), error) {
	if !table.IsValid() {
		return nil, fmt.Errorf("unknown watched table %q", table)
	}
	if fn == nil {
		return nil, errors.New("listener required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.New("realtime hub closed")
	}

	f, ok := h.feeds[table]
	if !ok {
		sub, err := h.source.Subscribe(h.ctx, table, h.dispatch)
		if err != nil {
			return nil, err
		}
		f = &feed{sub: sub, listeners: make(map[int]Handler)}
		h.feeds[table] = f
		if h.logg != nil {
			h.logg.Info(h.logg.WithField(h.ctx, "table", string(table)), "realtime subscription opened")
		}
	}

	id := h.nextID
	h.nextID++
	f.listeners[id] = fn
	h.metrics.SetListeners(string(table), len(f.listeners))

	var once sync.Once
	return func() {
		once.Do(func() { h.detach(table, id) })
	}, nil
}

// ListenMany attaches fn to several tables at once; on error nothing stays
// attached.
func (h *Hub) ListenMany(tables []enums.WatchedTable, fn Handler) (func(), error) {
	cancels := make([]func(), 0, len(tables))
	stop := func() {
		for _, c := range cancels {
			c()
		}
	}
	for _, table := range tables {
		cancel, err := h.Listen(table, fn)
		if err != nil {
			stop()
			return nil, err
		}
		cancels = append(cancels, cancel)
	}
	return stop, nil
}

func (h *Hub) detach(table enums.WatchedTable, id int) {
	h.mu.Lock()
	f, ok := h.feeds[table]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(f.listeners, id)
	h.metrics.SetListeners(string(table), len(f.listeners))
	var sub Subscription
	if len(f.listeners) == 0 {
		delete(h.feeds, table)
		sub = f.sub
	}
	h.mu.Unlock()

	// closing waits for the delivery goroutine, which may be blocked on h.mu
	if sub != nil {
		if err := sub.Close(); err != nil && h.logg != nil {
			h.logg.Error(h.ctx, "closing realtime subscription", err)
		}
	}
}

// Tables lists the tables with an open subscription.
func (h *Hub) Tables() []enums.WatchedTable {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]enums.WatchedTable, 0, len(h.feeds))
	for t := range h.feeds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Publish delivers a change to local listeners as if it came from the
// source. Used for changes produced in this process.
func (h *Hub) Publish(change Change) {
	h.dispatch(change)
}

func (h *Hub) dispatch(change Change) {
	h.metrics.IncReceived(string(change.Table), string(change.Op))
	if h.duplicate(change.EventID) {
		h.metrics.IncDuplicate(string(change.Table))
		return
	}

	h.mu.Lock()
	f, ok := h.feeds[change.Table]
	var targets []Handler
	if ok {
		targets = make([]Handler, 0, len(f.listeners))
		for _, fn := range f.listeners {
			targets = append(targets, fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range targets {
		h.deliver(fn, change)
	}
}

func (h *Hub) deliver(fn Handler, change Change) {
	defer func() {
		if r := recover(); r != nil && h.logg != nil {
			h.logg.Error(h.logg.WithField(h.ctx, "table", string(change.Table)), "realtime listener panicked", fmt.Errorf("%v", r))
		}
	}()
	fn(change)
}

func (h *Hub) duplicate(eventID string) bool {
	if eventID == "" {
		return false
	}
	now := h.now()

	h.seenMu.Lock()
	defer h.seenMu.Unlock()

	if now.Sub(h.lastPrune) > h.window {
		for id, at := range h.seen {
			if now.Sub(at) > h.window {
				delete(h.seen, id)
			}
		}
		h.lastPrune = now
	}

	if at, ok := h.seen[eventID]; ok && now.Sub(at) <= h.window {
		return true
	}
	h.seen[eventID] = now
	return false
}

// Close drops every subscription. Listen fails afterwards.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	feeds := h.feeds
	h.feeds = make(map[enums.WatchedTable]*feed)
	h.mu.Unlock()

	h.cancel()
	var err error
	for _, f := range feeds {
		err = multierr.Append(err, f.sub.Close())
	}
	return err
}
