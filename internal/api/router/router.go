package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/outreach-console/internal/calls"
	"github.com/wolfman30/outreach-console/internal/customers"
	httpmiddleware "github.com/wolfman30/outreach-console/internal/http/middleware"
	"github.com/wolfman30/outreach-console/internal/outreach"
	"github.com/wolfman30/outreach-console/pkg/logging"
)

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	OutreachHandler    *outreach.Handler
	CustomersHandler   *customers.Handler
	CallWebhooks       *calls.WebhookHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// APIRateLimit is requests per second per client on /api; zero disables it.
	APIRateLimit float64
	APIRateBurst int

	// HealthChecks are reported by /health; any failure degrades the status.
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.CallWebhooks != nil {
			cfg.CallWebhooks.Routes(public)
		}
	})

	r.Route("/api", func(api chi.Router) {
		if cfg.APIRateLimit > 0 {
			api.Use(httpmiddleware.RateLimit(cfg.APIRateLimit, cfg.APIRateBurst))
		}
		if cfg.CustomersHandler != nil {
			api.Get("/customers", cfg.CustomersHandler.List)
			api.Get("/customers/{id}", cfg.CustomersHandler.Get)
		}
		if cfg.OutreachHandler != nil {
			api.Route("/outreach", cfg.OutreachHandler.Routes)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]any{"status": "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			results := make(map[string]string, len(checks))
			for name, check := range checks {
				if err := check(ctx); err != nil {
					results[name] = err.Error()
					response["status"] = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				results[name] = "ok"
			}
			response["checks"] = results
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}
}
