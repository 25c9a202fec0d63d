package controllers

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/api/middleware"
	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: "test"}}
}

func withURLParam(req *http.Request, kv ...string) *http.Request {
	routeCtx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		routeCtx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func asStaff(req *http.Request, role enums.StaffRole) (*http.Request, uuid.UUID) {
	id := uuid.New()
	return req.WithContext(middleware.WithStaff(req.Context(), id, role)), id
}
