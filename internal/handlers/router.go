package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/metrics"
	"github.com/ukydev/trip-ledger/internal/middleware"
	"github.com/ukydev/trip-ledger/internal/models"
)

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Trips       TripService
	Auth        middleware.TokenValidator
	Idempotency *middleware.Idempotency
	Metrics     *metrics.Metrics
	Logger      log.FieldLogger
	RateLimit   int
	RateWindow  time.Duration
	Health      HealthCheck
}

// NewRouter wires every route behind authentication, rate limiting and
// idempotency. /health and /metrics stay public.
func NewRouter(p RouterParams) http.Handler {
	if p.Logger == nil {
		p.Logger = log.StandardLogger()
	}
	trips := NewTripHandler(p.Trips, p.Logger)
	authMW := middleware.NewAuthMiddleware(p.Auth)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(p.Logger))
	r.Use(chimw.Recoverer)
	r.Use(p.Metrics.Middleware)

	r.Get("/health", health(p.Health, p.Logger))
	r.Handle("/metrics", p.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(authMW.Authenticate)
		if p.RateLimit > 0 {
			r.Use(middleware.RateLimit(p.RateLimit, p.RateWindow))
		}
		r.Use(p.Idempotency.Middleware)

		can := authMW.RequirePermission
		r.Get("/me", Me)

		r.Route("/trips", func(r chi.Router) {
			r.With(can(models.ActionViewTrips)).Get("/", trips.ListTrips)
			r.With(can(models.ActionCreateTrip)).Post("/", trips.CreateTrip)

			r.Route("/{tripId}", func(r chi.Router) {
				r.With(can(models.ActionViewTrips)).Get("/", trips.GetTrip)
				r.With(can(models.ActionUpdateTripStatus)).Patch("/", trips.UpdateStatus)
				r.With(authMW.RequireRole(models.RoleManager)).Post("/undo", trips.UndoStatus)

				r.Group(func(r chi.Router) {
					r.Use(can(models.ActionManageCharges))
					r.Post("/charges", trips.AddCharge)
					r.Patch("/charges", trips.EditCharge)
					r.Delete("/charges", trips.DeleteCharge)
				})
				r.Group(func(r chi.Router) {
					r.Use(can(models.ActionManageExpenses))
					r.Post("/expenses", trips.AddExpense)
					r.Patch("/expenses", trips.EditExpense)
					r.Delete("/expenses", trips.DeleteExpense)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(can(models.ActionManagePayments))
			r.Post("/parties/{partyId}/payments", trips.AddPartyPayment)
			r.Put("/parties/{partyId}/payments/{paymentId}", trips.EditPartyPayment)
			r.Delete("/parties/{partyId}/payments/{paymentId}", trips.DeletePartyPayment)

			r.Post("/suppliers/{supplierId}/payments", trips.AddSupplierPayments)
			r.Put("/suppliers/{supplierId}/payments/{paymentId}", trips.EditSupplierPayment)
			r.Delete("/suppliers/{supplierId}/payments/{paymentId}", trips.DeleteSupplierPayment)
		})
	})

	return r
}

func health(check HealthCheck, logger log.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.WithError(err).Warn("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Me returns the caller's token claims.
func Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}
