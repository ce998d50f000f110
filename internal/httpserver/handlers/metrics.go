package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
)

// Metrics exposes the Prometheus registry.
func Metrics(d deps.Deps) http.HandlerFunc {
	h := d.Metrics.Handler()
	return h.ServeHTTP
}
