package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/mw"
)

func init() { Register(registerInfra) }

func registerInfra(r chi.Router, d deps.Deps) {
	r.Group(func(r chi.Router) {
		r.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		r.Use(middleware.Timeout(5 * time.Second))

		r.Get("/infra", handlers.Infra(d))
		r.Get("/metrics", handlers.Metrics(d))
	})
}
