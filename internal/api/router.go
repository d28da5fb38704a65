package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/cardlens/internal/api/middleware"
	"github.com/kiranshivaraju/cardlens/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	EnqueueCardHandler http.HandlerFunc
	EnqueueDeckHandler http.HandlerFunc
	LatestHandler      http.HandlerFunc
	HistoryHandler     http.HandlerFunc
	JobHandler         http.HandlerFunc
	BacklogHandler     http.HandlerFunc

	ReanalyzeHandler http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/analysis/cards/{cardID}", orNotImplemented(deps.EnqueueCardHandler))
		r.Get("/api/v1/analysis/cards/{cardID}", orNotImplemented(deps.LatestHandler))
		r.Get("/api/v1/analysis/cards/{cardID}/history", orNotImplemented(deps.HistoryHandler))
		r.Post("/api/v1/analysis/decks/{deckID}", orNotImplemented(deps.EnqueueDeckHandler))
		r.Get("/api/v1/analysis/jobs/{jobID}", orNotImplemented(deps.JobHandler))
		r.Get("/api/v1/analysis/backlog", orNotImplemented(deps.BacklogHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/analysis/reanalyze", orNotImplemented(deps.ReanalyzeHandler))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
