package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderSignature and HeaderTimestamp are set by Slack on every request.
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"

	// MaxClockSkew rejects replays of old requests.
	MaxClockSkew = 5 * time.Minute

	signatureVersion = "v0"
)

var (
	ErrMissingSignature = errors.New("missing slack signature headers")
	ErrStaleRequest     = errors.New("slack request timestamp out of range")
	ErrBadSignature     = errors.New("slack signature mismatch")
)

// Verifier checks the v0 HMAC signature Slack puts on each request.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a verifier for the app signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Sign returns the signature of body sent at timestamp (unix seconds).
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify validates the signature headers against body.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	sig := h.Get(HeaderSignature)
	ts := h.Get(HeaderTimestamp)
	if sig == "" || ts == "" {
		return ErrMissingSignature
	}

	secs, err := strconv.ParseInt(strings.TrimSpace(ts), 10, 64)
	if err != nil {
		return ErrStaleRequest
	}
	skew := v.now().Sub(time.Unix(secs, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return ErrStaleRequest
	}

	if !hmac.Equal([]byte(v.Sign(ts, body)), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}
