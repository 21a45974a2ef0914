package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"zapfilter/internal/adapters/server/middleware"
	"zapfilter/platform/config"
	"zapfilter/platform/logger"
)

// setupMiddlewares installs the global middleware chain: panic
// recovery, request logging, CORS and the IP allowlist. Basic auth is
// scoped to the admin group, not installed here.
func setupMiddlewares(r *chi.Mux, cfg *config.Config, log *logger.Logger) {
	// Panic recovery middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.ErrorWithFields("Panic recovered", map[string]interface{}{
						"error":  err,
						"path":   req.URL.Path,
						"method": req.Method,
					})
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, req)
		})
	})

	r.Use(middleware.HTTPLogger(log))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// The allowlist guards the whole surface, probes included.
	r.Use(middleware.IPAllowlist(cfg.IPAllowlist, log))
}
