package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the handlers behind the shared middleware stack. Every
// route except /health requires the token header.
func NewRouter(h *Handlers, token int64) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", TokenHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireToken(token))

		r.Post("/scrape", h.Scrape)
		r.Post("/scrape/", h.Scrape)

		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/scrape", h.Scrape)
			r.Get("/runs/{runID}", h.GetRun)
		})
	})

	return r
}
