package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tablepos-backend/api/controllers"
	"github.com/angelmondragon/tablepos-backend/api/middleware"
	"github.com/angelmondragon/tablepos-backend/internal/cart"
	"github.com/angelmondragon/tablepos-backend/internal/kitchen"
	"github.com/angelmondragon/tablepos-backend/internal/menu"
	"github.com/angelmondragon/tablepos-backend/internal/notifications"
	"github.com/angelmondragon/tablepos-backend/internal/orders"
	"github.com/angelmondragon/tablepos-backend/internal/reports"
	"github.com/angelmondragon/tablepos-backend/internal/returns"
	"github.com/angelmondragon/tablepos-backend/internal/tables"
	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
	"github.com/angelmondragon/tablepos-backend/pkg/redis"
)

// Deps carries everything the HTTP surface is wired to.
type Deps struct {
	Pingers        map[string]controllers.Pinger
	Idempotency    redis.IdempotencyStore
	RateLimiter    middleware.RateLimiter
	HTTPMetrics    *metrics.HTTPMetrics
	MetricsHandler http.Handler
	Changes        controllers.ChangeFeed

	Tables        tables.Service
	Menu          menu.Service
	MenuImporter  controllers.MenuImporter
	Cart          cart.Service
	Orders        orders.Service
	Kitchen       kitchen.Service
	Returns       returns.Service
	Notifications notifications.Service
	Reports       reports.Service
}

var (
	floorStaff   = []enums.StaffRole{enums.StaffRoleWaiter, enums.StaffRoleCashier}
	cashierOnly  = []enums.StaffRole{enums.StaffRoleCashier}
	kitchenStaff = []enums.StaffRole{enums.StaffRoleKitchen}
	menuStock    = []enums.StaffRole{enums.StaffRoleKitchen, enums.StaffRoleCashier}
	adminOnly    = []enums.StaffRole{enums.StaffRoleAdmin}
)

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loc := cfg.Kitchen.Location()
	gate := func(roles []enums.StaffRole) func(http.Handler) http.Handler {
		return middleware.RequireRoles(logg, roles...)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(deps.RateLimiter, cfg.App.MutationsPerMinute, time.Minute, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Get("/realtime/ws", controllers.RealtimeStream(deps.Changes, controllers.StreamOptions{
			AllowedOrigins: cfg.App.CORSOrigins,
			WriteTimeout:   cfg.Realtime.WSWriteTimeout,
		}, logg))

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", controllers.ListTables(deps.Tables, logg))
			r.With(gate(adminOnly)).Post("/", controllers.CreateTable(deps.Tables, logg))
			r.With(gate(floorStaff)).Patch("/{tableId}/status", controllers.UpdateTableStatus(deps.Tables, logg))

			r.Route("/{tableId}/cart", func(r chi.Router) {
				r.Use(gate(floorStaff))
				r.Get("/", controllers.CartFetch(deps.Cart, logg))
				r.Post("/", controllers.CartAdd(deps.Cart, logg))
				r.Delete("/", controllers.CartClear(deps.Cart, logg))
				r.Post("/submit", controllers.CartSubmit(deps.Cart, logg))
				r.Patch("/{cartItemId}", controllers.CartUpdateQuantity(deps.Cart, logg))
				r.Delete("/{cartItemId}", controllers.CartRemove(deps.Cart, logg))
			})
		})

		r.Route("/menu", func(r chi.Router) {
			r.Get("/", controllers.ListMenu(deps.Menu, logg))
			r.With(gate(menuStock)).Patch("/{menuItemId}/availability", controllers.UpdateMenuAvailability(deps.Menu, logg))
			r.With(gate(adminOnly)).Post("/import", controllers.ImportMenu(deps.MenuImporter, cfg.Sheets.SpreadsheetID, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, loc, logg))
			r.With(gate(floorStaff)).Post("/merge", controllers.MergeOrders(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.OrderDetail(deps.Orders, logg))
				r.Get("/returned-quantity", controllers.ReturnedQuantity(deps.Orders, logg))
				r.Group(func(r chi.Router) {
					r.Use(gate(floorStaff))
					r.Post("/status", controllers.UpdateOrderStatus(deps.Orders, logg))
					r.Post("/split", controllers.SplitOrder(deps.Orders, logg))
					r.Post("/transfer", controllers.TransferOrder(deps.Orders, logg))
					r.Post("/returns", controllers.RequestReturn(deps.Returns, logg))
					r.Post("/cancellation", controllers.RequestCancellation(deps.Returns, logg))
				})
			})
		})

		r.Route("/returns", func(r chi.Router) {
			r.Use(gate(cashierOnly))
			r.Get("/", controllers.ListReturns(deps.Returns, logg))
			r.Post("/{slipId}/approve", controllers.ReviewReturn(deps.Returns, true, logg))
			r.Post("/{slipId}/reject", controllers.ReviewReturn(deps.Returns, false, logg))
		})

		r.Route("/cancellations", func(r chi.Router) {
			r.Use(gate(cashierOnly))
			r.Get("/", controllers.ListCancellations(deps.Returns, logg))
			r.Post("/{cancellationId}/resolve", controllers.ResolveCancellation(deps.Returns, logg))
		})

		r.Route("/kitchen", func(r chi.Router) {
			r.Get("/board", controllers.KitchenBoard(deps.Kitchen, logg))
			r.Get("/summary", controllers.KitchenSummary(deps.Kitchen, logg))
			r.Get("/items/{name}", controllers.KitchenItemDetail(deps.Kitchen, logg))
			r.Group(func(r chi.Router) {
				r.Use(gate(kitchenStaff))
				r.Post("/line-items/{lineItemId}/transition", controllers.TransitionLineItem(deps.Kitchen, logg))
				r.Post("/orders/{orderId}/complete", controllers.CompleteKitchenOrder(deps.Kitchen, logg))
				r.Post("/items/{name}/start", controllers.StartKitchenItem(deps.Kitchen, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(gate(adminOnly))
			r.Get("/reports/sales", controllers.SalesReport(deps.Reports, loc, logg))
			r.Get("/expenses", controllers.ListExpenses(deps.Reports, loc, logg))
			r.Post("/expenses", controllers.CreateExpense(deps.Reports, logg))
		})
	})

	return r
}
