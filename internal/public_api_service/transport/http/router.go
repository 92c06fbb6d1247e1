package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusline/comms_services/internal/public_api_service/middleware"
)

// RouterConfig wires the handlers and credentials of the public API.
type RouterConfig struct {
	Logger          *slog.Logger
	JWTAccessSecret []byte
	WorkerTokenHash string
	RequestTimeout  time.Duration

	Recipients *RecipientHandler
	Templates  *TemplateHandler
	Messages   *MessageHandler
	Webhooks   *WebhookHandler
	Worker     *WorkerHandler
}

// NewRouter builds the HTTP routes of the public API.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "Public API service is healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Provider callbacks are authenticated by signature, not by user token.
	cfg.Webhooks.RegisterRoutes(r)

	r.Route("/internal", func(ir chi.Router) {
		ir.Use(middleware.WorkerAuthMiddleware(cfg.WorkerTokenHash, cfg.Logger))
		cfg.Worker.RegisterRoutes(ir)
	})

	r.Route("/api/v1", func(v1Router chi.Router) {
		v1Router.Use(middleware.AuthMiddleware(cfg.JWTAccessSecret, cfg.Logger))
		cfg.Recipients.RegisterRoutes(v1Router)
		cfg.Templates.RegisterRoutes(v1Router)
		cfg.Messages.RegisterRoutes(v1Router)
	})

	return r
}
