package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready    bool     `json:"ready"`
	Adapters []string `json:"adapters"`
}

// Readyz reports ready once at least one adapter is enabled.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapters := d.Orchestrator.Adapters()

		status := http.StatusOK
		if len(adapters) == 0 {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, d.Logger, status, readyzResponse{
			Ready:    len(adapters) > 0,
			Adapters: adapters,
		})
	}
}
