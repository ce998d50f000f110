package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
)

type componentStatus struct {
	OK     bool     `json:"ok"`
	Mode   string   `json:"mode,omitempty"`
	Impact string   `json:"impact,omitempty"`
	Error  string   `json:"error,omitempty"`
	Items  []string `json:"items,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapters := d.Orchestrator.Adapters()

		components := map[string]componentStatus{
			"adapters": {
				OK:    len(adapters) > 0,
				Items: adapters,
			},
			"dedupe": checkDedupe(r.Context(), d),
		}

		writeJSON(w, d.Logger, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	// No adapter = nothing can be unfurled
	if a, ok := components["adapters"]; ok && !a.OK {
		return "critical"
	}

	// Dedupe down = Slack retries may be unfurled twice
	if dd, ok := components["dedupe"]; ok && !dd.OK {
		return "degraded"
	}

	return "operational"
}

func checkDedupe(ctx context.Context, d deps.Deps) componentStatus {
	backend := d.Orchestrator.DedupeBackend()

	if d.RedisClient == nil {
		return componentStatus{
			OK:     backend != "none",
			Mode:   backend,
			Impact: "retries-deduplicated-per-instance",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.RedisClient.Ping(ctx).Err(); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   backend,
			Impact: "retries-may-unfurl-twice",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   backend,
		Impact: "retries-deduplicated",
	}
}
