/*
server.go - HTTP router and middleware configuration

ROUTER: chi

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zap request log (Info, Warn for 4xx, Error for 5xx)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a browser front end

ROUTE GROUPS:
  /api/workers/*         Workers, schedules, punches, bank, reports
  /api/punch             Kiosk punch by PIN
  /api/admin-entries/*   Administrative overrides
  /api/reconciliation/*  Scheduler trigger and status
  /api/admin/*           Maintenance
  /healthz               Liveness, plus a storage ping when one is set
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger

	// Storage is pinged by /healthz when set.
	Storage Pinger
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Storage != nil {
			if err := opts.Storage.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetWorker)
				r.Get("/schedule", h.GetSchedule)
				r.Put("/schedule", h.PutSchedule)
				r.Get("/punches", h.GetPunches)
				r.Post("/punches", h.RegisterPunch)
				r.Get("/balance", h.GetBalance)
				r.Get("/transactions", h.GetTransactions)
				r.Post("/adjustments", h.CreateAdjustment)
				r.Post("/reconcile", h.ReconcileDay)
				r.Get("/admin-entries", h.ListAdminEntries)
				r.Get("/reports", h.ListReports)
				r.Post("/reports", h.GenerateReport)
			})
		})

		r.Post("/punch", h.PunchByPIN)

		r.Route("/admin-entries", func(r chi.Router) {
			r.Post("/", h.CreateAdminEntry)
			r.Delete("/{id}", h.DeleteAdminEntry)
		})

		r.Route("/reconciliation", func(r chi.Router) {
			r.Post("/tick", h.TriggerTick)
			r.Get("/last", h.LastRun)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/wipe", h.WipeData)
		})
	})

	return r
}

// RequestLogger logs every request through zap.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("latency", time.Since(start)),
			}

			switch {
			case status >= 500:
				logger.Error("request failed", fields...)
			case status >= 400:
				logger.Warn("client error", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}
