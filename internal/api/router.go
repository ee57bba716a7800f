package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medigrid/slotbooker/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints sit outside the identity gate.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		r.Route("/providers/{providerID}/slots", func(r chi.Router) {
			r.Post("/", createSlotsHandler(cfg.Service))
			r.Get("/", listSlotsHandler(cfg.Service))
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", initiateBookingHandler(cfg.Service))
			r.Get("/", listBookingsHandler(cfg.Service))
			r.Get("/{id}", getBookingHandler(cfg.Service))
			r.Post("/{id}/confirm", confirmBookingHandler(cfg.Service))
			r.Post("/{id}/cancel", cancelBookingHandler(cfg.Service))
			r.Post("/{id}/complete", completeBookingHandler(cfg.Service))
		})
	})

	return r
}
