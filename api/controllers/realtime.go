package controllers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/tablepos-backend/api/middleware"
	"github.com/angelmondragon/tablepos-backend/api/responses"
	"github.com/angelmondragon/tablepos-backend/api/validators"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/realtime"
)

const (
	streamBuffer   = 64
	pingInterval   = 25 * time.Second
	pongWait       = 60 * time.Second
	maxClientFrame = 512
)

// ChangeFeed is the slice of the realtime hub a screen stream needs.
type ChangeFeed interface {
	ListenMany(tables []enums.WatchedTable, fn realtime.Handler) (func(), error)
}

// StreamOptions tunes the websocket stream.
type StreamOptions struct {
	AllowedOrigins []string
	WriteTimeout   time.Duration
}

// RealtimeStream upgrades to a websocket and forwards row changes for the
// requested watched tables. With tableId set, only changes scoped to that
// dining table (or unscoped ones) are sent. A client that cannot keep up
// is disconnected and is expected to reconnect and refetch.
func RealtimeStream(feed ChangeFeed, opts StreamOptions, logg *logger.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if feed == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "realtime feed unavailable"))
			return
		}
		tables, err := parseWatchedTables(r.URL.Query().Get("tables"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		scope, err := validators.ParseQueryUUID(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			if logg != nil {
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "realtime.upgrade_failed")
			}
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"user_id": middleware.UserIDFromContext(r.Context()), "tables": len(tables)})
		}
		defer cancel()

		changes := make(chan realtime.Change, streamBuffer)
		overflow := make(chan struct{})
		var overflowOnce sync.Once
		stop, err := feed.ListenMany(tables, func(c realtime.Change) {
			if scope != nil && len(c.TableIDs) > 0 && !c.TouchesTable(scope.String()) {
				return
			}
			select {
			case changes <- c:
			default:
				overflowOnce.Do(func() { close(overflow) })
			}
		})
		if err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
				time.Now().Add(writeTimeout))
			if logg != nil {
				logg.Error(ctx, "realtime.subscribe_failed", err)
			}
			return
		}
		defer stop()

		go readLoop(conn, cancel)

		if logg != nil {
			logg.Info(ctx, "realtime.stream_opened")
		}
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-overflow:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client too slow"),
					time.Now().Add(writeTimeout))
				if logg != nil {
					logg.Warn(ctx, "realtime.stream_overflow")
				}
				return
			case change := <-changes:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(change); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func readLoop(conn *websocket.Conn, done context.CancelFunc) {
	defer done()
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func parseWatchedTables(raw string) ([]enums.WatchedTable, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return enums.WatchedTableValues(), nil
	}
	seen := map[enums.WatchedTable]struct{}{}
	var out []enums.WatchedTable
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		table, err := enums.ParseWatchedTable(part)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tables parameter")
		}
		if _, dup := seen[table]; dup {
			continue
		}
		seen[table] = struct{}{}
		out = append(out, table)
	}
	if len(out) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tables parameter is empty")
	}
	return out, nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(strings.TrimSpace(origin), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
