package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/immucare/vaccine-booking/internal/booking"
	"github.com/immucare/vaccine-booking/internal/inventory"
	"github.com/immucare/vaccine-booking/internal/slot"
)

type RouterConfig struct {
	Service  *booking.Service
	Slots    slot.Allocator
	Ledger   inventory.Ledger
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	// Booking endpoints
	r.Post("/bookings", bookHandler(cfg.Service))
	r.Post("/bookings/consultation", consultationHandler(cfg.Service))
	r.Post("/bookings/{id}/cancel", cancelHandler(cfg.Service))
	r.Get("/bookings/{id}", getAppointmentHandler(cfg.Service))

	// Read-only slot and stock queries
	r.Get("/centers/{centerID}/slots", listSlotsHandler(cfg.Slots))
	r.Get("/centers/{centerID}/stock", listStockHandler(cfg.Ledger))

	return r
}
