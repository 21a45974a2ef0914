package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zapfilter/internal/adapters/server/handler"
	"zapfilter/internal/pipeline"
	"zapfilter/internal/store"
	"zapfilter/internal/webhook"
	"zapfilter/platform/config"
	"zapfilter/platform/logger"
)

// Deps carries everything the HTTP surface needs. Sender and Metrics
// may be nil; the routes depending on them degrade gracefully.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Store      *store.Config
	Stats      *store.Stats
	Messages   *store.Messages
	Media      *store.Media
	Dispatcher *webhook.Dispatcher
	Connection *pipeline.Connection
	Pipeline   *pipeline.Router
	Sender     handler.Sender
	Metrics    http.Handler
	Version    string
}

// SetupRoutes builds the full HTTP surface: open ingress and probes,
// basic-auth admin API, swagger.
func SetupRoutes(deps *Deps) http.Handler {
	r := chi.NewRouter()

	setupMiddlewares(r, deps.Config, deps.Logger)

	setupSwaggerRoutes(r)
	setupHealthRoutes(r, deps.Version)
	setupMetricsRoutes(r, deps.Metrics)

	setupIngressRoutes(r, deps)
	setupAdminRoutes(r, deps)

	return r
}

// setupHealthRoutes serves the liveness probe.
func setupHealthRoutes(r *chi.Mux, version string) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"zapfilter","version":"%s"}`, version)
	})
}

// setupMetricsRoutes mounts the prometheus endpoint when a collector
// is wired.
func setupMetricsRoutes(r *chi.Mux, metrics http.Handler) {
	if metrics == nil {
		return
	}
	r.Method(http.MethodGet, "/metrics", metrics)
}
