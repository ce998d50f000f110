package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/mw"
)

// EventsPath is the Request URL configured in the Slack app.
const EventsPath = "/slack/events"

func init() { Register(registerEvents) }

func registerEvents(r chi.Router, d deps.Deps) {
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = handlers.DefaultMaxBodyBytes
	}

	r.With(
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.RateLimitBurst,
			RefillPerIPPerMin: d.RateLimitPerMinute,
			TrustProxy:        d.TrustProxy,
		}),
		mw.SlackSignature(d.SigningSecret, maxBody, d.Logger),
	).Post(EventsPath, handlers.Events(d))
}
