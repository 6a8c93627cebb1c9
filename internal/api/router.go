package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/careslot/scheduling/internal/appointment"
	"github.com/careslot/scheduling/internal/availability"
	"github.com/careslot/scheduling/internal/notify"
)

type RouterConfig struct {
	Service      *appointment.Service
	Availability availability.Store
	Hub          *notify.Hub
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(IdentityMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability and slots
	r.Get("/doctors/{doctorID}/slots", listSlotsHandler(cfg.Service))
	r.Get("/doctors/{doctorID}/availability", getAvailabilityHandler(cfg.Availability))
	r.Put("/doctors/{doctorID}/availability", setAvailabilityHandler(cfg.Availability))

	// Appointment lifecycle
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reject", rejectAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))

	// Live event stream
	r.Get("/ws", eventStreamHandler(cfg.Hub, cfg.Logger))

	return r
}
