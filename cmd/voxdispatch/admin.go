package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/voxdispatch/internal/health"
	"github.com/MrWong99/voxdispatch/internal/observe"
)

// newAdminRouter serves /healthz, /readyz and the metrics exposition on
// /metrics.
func newAdminRouter(src health.AvailabilitySource, m *observe.Metrics, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(m))

	health.New(health.Providers(src)).Register(r)
	r.Method(http.MethodGet, "/metrics", metrics)
	return r
}
