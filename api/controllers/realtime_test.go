package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/realtime"
)

type fakeFeed struct {
	mu         sync.Mutex
	tables     []enums.WatchedTable
	handler    realtime.Handler
	registered chan struct{}
	stopped    chan struct{}
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{registered: make(chan struct{}), stopped: make(chan struct{})}
}

func (f *fakeFeed) ListenMany(tables []enums.WatchedTable, fn realtime.Handler) (func(), error) {
	f.mu.Lock()
	f.tables = tables
	f.handler = fn
	f.mu.Unlock()
	close(f.registered)
	var once sync.Once
	return func() { once.Do(func() { close(f.stopped) }) }, nil
}

func (f *fakeFeed) emit(c realtime.Change) {
	f.mu.Lock()
	fn := f.handler
	f.mu.Unlock()
	fn(c)
}

func dialStream(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestRealtimeStreamForwardsScopedChanges(t *testing.T) {
	feed := newFakeFeed()
	srv := httptest.NewServer(RealtimeStream(feed, StreamOptions{}, testLogger()))
	defer srv.Close()

	tableID := uuid.NewString()
	conn := dialStream(t, srv, "?tables=orders,order_items,orders&tableId="+tableID)
	waitFor(t, feed.registered)
	assert.Equal(t, []enums.WatchedTable{enums.WatchedOrders, enums.WatchedOrderItems}, feed.tables)

	feed.emit(realtime.Change{EventID: "other", Table: enums.WatchedOrders, Op: enums.ChangeOpUpdate, TableIDs: []string{uuid.NewString()}})
	feed.emit(realtime.Change{EventID: "mine", Table: enums.WatchedOrders, Op: enums.ChangeOpUpdate, TableIDs: []string{tableID}})
	feed.emit(realtime.Change{EventID: "global", Table: enums.WatchedOrderItems, Op: enums.ChangeOpInsert})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second realtime.Change
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "mine", first.EventID)
	assert.Equal(t, "global", second.EventID)

	require.NoError(t, conn.Close())
	waitFor(t, feed.stopped)
}

func TestRealtimeStreamRejectsUnknownTable(t *testing.T) {
	feed := newFakeFeed()
	handler := RealtimeStream(feed, StreamOptions{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/ws?tables=orders,payments", nil)
	resp := httptest.NewRecorder()
	handler(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRealtimeStreamWithoutFeed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	resp := httptest.NewRecorder()
	RealtimeStream(nil, StreamOptions{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestParseWatchedTables(t *testing.T) {
	all, err := parseWatchedTables("  ")
	require.NoError(t, err)
	assert.ElementsMatch(t, enums.WatchedTableValues(), all)

	got, err := parseWatchedTables("kitchen_notifications, tables ,,tables")
	require.NoError(t, err)
	assert.Equal(t, []enums.WatchedTable{enums.WatchedKitchenNotifications, enums.WatchedTables}, got)

	_, err = parseWatchedTables(",,")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173/", " https://pos.quan.vn "})
	cases := map[string]bool{
		"":                      true,
		"http://localhost:5173": true,
		"https://pos.quan.vn":   true,
		"https://evil.example":  false,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, check(req), origin)
	}

	wildcard := originChecker([]string{"*"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://anything.example")
	assert.True(t, wildcard(req))
}
