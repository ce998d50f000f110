package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
)

const (
	// DefaultMaxBodyBytes caps an Events API request body.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultRequestTimeout bounds the handling of one event.
	DefaultRequestTimeout = 15 * time.Second
)

// Events receives Slack Events API callbacks.
//
// Handling runs to completion even if Slack drops the connection, so that
// previews are still posted; it is bounded by d.RequestTimeout instead.
func Events(d deps.Deps) http.HandlerFunc {
	maxBody := d.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, d.Logger, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request body too large"})
				return
			}
			writeJSON(w, d.Logger, http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
			return
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
		defer cancel()

		resp := d.Orchestrator.Handle(ctx, body)
		writeJSON(w, d.Logger, resp.Status, resp.Body)
	}
}

func writeJSON(w http.ResponseWriter, log logger.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug("failed to write response", logger.Error(err))
	}
}
