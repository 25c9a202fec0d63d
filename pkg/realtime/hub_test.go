package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	opened   map[enums.WatchedTable]int
	closed   map[enums.WatchedTable]int
	handlers map[enums.WatchedTable]Handler
	err      error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		opened:   map[enums.WatchedTable]int{},
		closed:   map[enums.WatchedTable]int{},
		handlers: map[enums.WatchedTable]Handler{},
	}
}

func (s *fakeSource) Subscribe(_ context.Context, table enums.WatchedTable, handle Handler) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.opened[table]++
	s.handlers[table] = handle
	return subscriptionFunc(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed[table]++
		delete(s.handlers, table)
		return nil
	}), nil
}

func (s *fakeSource) emit(c Change) {
	s.mu.Lock()
	h := s.handlers[c.Table]
	s.mu.Unlock()
	if h != nil {
		h(c)
	}
}

func TestHubOpensOneSubscriptionPerTable(t *testing.T) {
	src := newFakeSource()
	hub, err := NewHub(src, HubOptions{})
	require.NoError(t, err)

	var got [3]int
	stop1, err := hub.Listen(enums.WatchedOrderItems, func(Change) { got[0]++ })
	require.NoError(t, err)
	stop2, err := hub.Listen(enums.WatchedOrderItems, func(Change) { got[1]++ })
	require.NoError(t, err)
	stop3, err := hub.Listen(enums.WatchedOrders, func(Change) { got[2]++ })
	require.NoError(t, err)

	assert.Equal(t, 1, src.opened[enums.WatchedOrderItems])
	assert.Equal(t, 1, src.opened[enums.WatchedOrders])
	assert.Equal(t, []enums.WatchedTable{enums.WatchedOrderItems, enums.WatchedOrders}, hub.Tables())

	src.emit(Change{EventID: "e1", Table: enums.WatchedOrderItems, Op: enums.ChangeOpUpdate})
	assert.Equal(t, [3]int{1, 1, 0}, got)

	stop1()
	stop1()
	assert.Equal(t, 0, src.closed[enums.WatchedOrderItems])
	stop2()
	assert.Equal(t, 1, src.closed[enums.WatchedOrderItems])
	stop3()
	assert.Empty(t, hub.Tables())

	// a new listener reopens the feed
	stop4, err := hub.Listen(enums.WatchedOrderItems, func(Change) {})
	require.NoError(t, err)
	assert.Equal(t, 2, src.opened[enums.WatchedOrderItems])
	stop4()
}

func TestHubDropsDuplicateEventsInsideWindow(t *testing.T) {
	src := newFakeSource()
	hub, err := NewHub(src, HubOptions{DedupeWindow: time.Minute})
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return now }

	count := 0
	_, err = hub.Listen(enums.WatchedTables, func(Change) { count++ })
	require.NoError(t, err)

	change := Change{EventID: "evt-1", Table: enums.WatchedTables, Op: enums.ChangeOpUpdate}
	src.emit(change)
	src.emit(change)
	assert.Equal(t, 1, count)

	now = now.Add(2 * time.Minute)
	src.emit(change)
	assert.Equal(t, 2, count, "event id should be forgotten after the window")

	src.emit(Change{Table: enums.WatchedTables, Op: enums.ChangeOpUpdate})
	src.emit(Change{Table: enums.WatchedTables, Op: enums.ChangeOpUpdate})
	assert.Equal(t, 4, count, "changes without an event id are never deduplicated")
}

func TestHubListenerPanicDoesNotStopFanout(t *testing.T) {
	src := newFakeSource()
	hub, err := NewHub(src, HubOptions{})
	require.NoError(t, err)

	delivered := 0
	_, err = hub.Listen(enums.WatchedMenuItems, func(Change) { panic("boom") })
	require.NoError(t, err)
	_, err = hub.Listen(enums.WatchedMenuItems, func(Change) { delivered++ })
	require.NoError(t, err)

	src.emit(Change{EventID: "x", Table: enums.WatchedMenuItems, Op: enums.ChangeOpUpdate})
	assert.Equal(t, 1, delivered)
}

func TestHubListenErrors(t *testing.T) {
	src := newFakeSource()
	hub, err := NewHub(src, HubOptions{})
	require.NoError(t, err)

	_, err = hub.Listen("payments", func(Change) {})
	assert.Error(t, err)
	_, err = hub.Listen(enums.WatchedOrders, nil)
	assert.Error(t, err)

	src.err = errors.New("down")
	_, err = hub.ListenMany([]enums.WatchedTable{enums.WatchedOrders}, func(Change) {})
	assert.Error(t, err)
	assert.Empty(t, hub.Tables())

	_, err = NewHub(nil, HubOptions{})
	assert.Error(t, err)
}

func TestHubListenManyRollsBack(t *testing.T) {
	src := newFakeSource()
	hub, err := NewHub(src, HubOptions{})
	require.NoError(t, err)

	_, err = hub.ListenMany([]enums.WatchedTable{enums.WatchedOrders, "bogus"}, func(Change) {})
	require.Error(t, err)
	assert.Equal(t, 1, src.closed[enums.WatchedOrders])
	assert.Empty(t, hub.Tables())
}

func TestHubCloseClosesFeeds(t *testing.T) {
	src := newFakeSource()
	hub, err := NewHub(src, HubOptions{})
	require.NoError(t, err)

	_, err = hub.ListenMany([]enums.WatchedTable{enums.WatchedOrders, enums.WatchedOrderItems}, func(Change) {})
	require.NoError(t, err)
	require.NoError(t, hub.Close())
	assert.Equal(t, 1, src.closed[enums.WatchedOrders])
	assert.Equal(t, 1, src.closed[enums.WatchedOrderItems])

	_, err = hub.Listen(enums.WatchedOrders, func(Change) {})
	assert.Error(t, err)
	assert.NoError(t, hub.Close())
}

func TestHubPublishDeliversLocally(t *testing.T) {
	hub, err := NewHub(newFakeSource(), HubOptions{})
	require.NoError(t, err)

	var got Change
	_, err = hub.Listen(enums.WatchedKitchenNotifications, func(c Change) { got = c })
	require.NoError(t, err)

	hub.Publish(Change{EventID: "n1", Table: enums.WatchedKitchenNotifications, Op: enums.ChangeOpInsert, RowID: "abc"})
	assert.Equal(t, "abc", got.RowID)
}
