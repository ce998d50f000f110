// Package sources holds what the backend adapters share: a bounded, rate
// limited HTTP requester and helpers to log response bodies safely.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/unfurl/internal/utils"
)

const (
	// DefaultTimeout bounds a single outbound call.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxBodyBytes caps how much of a response is read.
	DefaultMaxBodyBytes int64 = 2 << 20
	// ExcerptLen is the longest body excerpt written to logs.
	ExcerptLen = 500
)

// ErrUnexpectedStatus is matched by every non-2xx StatusError.
var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError carries a non-2xx response.
type StatusError struct {
	Status  int
	Excerpt string // bounded, for logs only
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Options configures a Requester.
type Options struct {
	Timeout       time.Duration // per call, including the rate limiter wait
	UserAgent     string
	RatePerSecond float64 // 0 disables limiting
	Burst         int
	MaxBodyBytes  int64
	Client        *http.Client // optional, replaces the default client
}

// Requester performs the outbound calls of one adapter.
type Requester struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	timeout   time.Duration
	maxBody   int64
}

// NewRequester builds a requester; zero options get sane defaults.
func NewRequester(opts Options) *Requester {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   opts.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   opts.Timeout,
				ResponseHeaderTimeout: opts.Timeout,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
			},
		}
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Requester{
		client:    client,
		limiter:   limiter,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
		maxBody:   opts.MaxBodyBytes,
	}
}

// Do sends req and returns the body of a 2xx response. A non-2xx response
// yields a *StatusError. A timeout is an ordinary error.
func (r *Requester) Do(ctx context.Context, req *http.Request) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req = req.WithContext(ctx)
	if r.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", redactURLError(err))
	}
	defer utils.DrainClose(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > r.maxBody {
		return nil, fmt.Errorf("response too large (exceeds %d bytes)", r.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Excerpt: Excerpt(body)}
	}
	return body, nil
}

// Excerpt returns at most ExcerptLen characters of body, for logs.
func Excerpt(body []byte) string {
	if utf8.RuneCount(body) <= ExcerptLen {
		return string(body)
	}
	runes := []rune(string(body))
	if len(runes) <= ExcerptLen {
		return string(runes)
	}
	return string(runes[:ExcerptLen])
}

// redactURLError drops the query string from the URL carried by a transport
// error; adapters may pass credentials there.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		u.User = nil
		ue.URL = u.String()
	} else {
		before, _, _ := strings.Cut(ue.URL, "?")
		ue.URL = before
	}
	return err
}
