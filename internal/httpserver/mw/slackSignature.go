package mw

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/slack"
)

// SlackSignature rejects requests not signed with the app's signing secret.
// The body is read up to maxBody bytes and handed on unchanged. An empty
// secret disables the check.
func SlackSignature(secret string, maxBody int64, log logger.Logger) func(http.Handler) http.Handler {
	if secret == "" {
		log.Warn("SlackSignature: no signing secret configured, requests are not authenticated")
		return func(next http.Handler) http.Handler { return next }
	}

	verifier := slack.NewVerifier(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}

			if err := verifier.Verify(r.Header, body); err != nil {
				log.Warn("SlackSignature: rejected",
					logger.Error(err),
					logger.String("remote_addr", r.RemoteAddr),
				)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
