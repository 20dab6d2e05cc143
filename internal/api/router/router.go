package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/museumbook/internal/console"
	httpmiddleware "github.com/wolfman30/museumbook/internal/http/middleware"
	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/pkg/logging"
)

// UpstreamChecker reports the booking API's health.
type UpstreamChecker interface {
	Health(ctx context.Context) (*museumapi.Health, error)
}

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Console            *console.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// Upstream is optional; when set /health?upstream=1 also checks the API.
	Upstream UpstreamChecker

	// SubmitRatePerSecond limits bulk submissions per client IP. Zero disables it.
	SubmitRatePerSecond float64
	SubmitBurst         int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthHandler(cfg.Upstream))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Console != nil {
		routes := cfg.Console.Routes()
		if cfg.SubmitRatePerSecond > 0 {
			limited := chi.NewRouter()
			limited.With(httpmiddleware.RateLimit(cfg.SubmitRatePerSecond, cfg.SubmitBurst)).
				Post("/ingest/submit", cfg.Console.Submit)
			limited.Mount("/", routes)
			r.Mount("/", limited)
		} else {
			r.Mount("/", routes)
		}
	}

	return r
}

func healthHandler(upstream UpstreamChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"status": "ok"}
		status := http.StatusOK
		if upstream != nil && r.URL.Query().Get("upstream") != "" {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			h, err := upstream.Health(ctx)
			switch {
			case err != nil:
				resp["status"] = "degraded"
				resp["upstream"] = err.Error()
				status = http.StatusBadGateway
			case h.Status != "":
				resp["upstream"] = h.Status
			default:
				resp["upstream"] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
