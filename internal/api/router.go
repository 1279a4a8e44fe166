package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medbook/scheduling/internal/booking"
)

type RouterConfig struct {
	Engine  *booking.Engine
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/providers", listProvidersHandler(cfg.Engine))
	r.Post("/providers", createProviderHandler(cfg.Engine))
	r.Delete("/providers/{id}", deleteProviderHandler(cfg.Engine))
	r.Get("/providers/{id}/slots", listSlotsHandler(cfg.Engine))
	r.Post("/providers/{id}/windows", declareWindowHandler(cfg.Engine))
	r.Delete("/providers/{id}/windows", removeWindowHandler(cfg.Engine))

	r.Post("/patients", createPatientHandler(cfg.Engine))

	r.Post("/appointments", createAppointmentHandler(cfg.Engine))
	r.Get("/appointments", listAppointmentsHandler(cfg.Engine))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Engine))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Engine))
	r.Post("/appointments/{id}/reactivate", reactivateAppointmentHandler(cfg.Engine))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Engine))

	return r
}
