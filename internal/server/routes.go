package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maauso/shortsgen-api/internal/auth"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates the HTTP router. Everything except /health requires a
// bearer token.
func NewRouter(h *Handlers, verifier auth.Verifier, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(verifier, Unauthorized))

		r.Post("/jobs", h.CreateJob)
		r.Post("/jobs/run", h.RunJob)
		r.Get("/jobs/{id}", h.GetJob)
		r.Get("/credits", h.GetCredits)
	})

	return r
}
