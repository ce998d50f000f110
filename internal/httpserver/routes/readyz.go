package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/handlers"
)

func init() { Register(registerProbes) }

// Probes stay reachable from anywhere so the orchestrator can call them.
func registerProbes(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))
	r.Get("/readyz", handlers.Readyz(d))
}
