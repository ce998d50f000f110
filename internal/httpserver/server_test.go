package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/unfurl/internal/domain"
	"github.com/MrSnakeDoc/unfurl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unfurl/internal/index"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/metrics"
	"github.com/MrSnakeDoc/unfurl/internal/slack"
	"github.com/MrSnakeDoc/unfurl/internal/unfurl"
)

type stubAdapter struct{}

func (stubAdapter) Name() string                     { return "stub" }
func (stubAdapter) Enabled() bool                    { return true }
func (stubAdapter) Recognizes(rawURL, _ string) bool { return strings.Contains(rawURL, "/issues/") }
func (stubAdapter) Fetch(_ context.Context, rawURL string) *domain.PreviewCard {
	return &domain.PreviewCard{Title: "Issue", TitleLink: rawURL}
}

type recordingPoster struct {
	mu    sync.Mutex
	posts []domain.UnfurlResult
}

func (p *recordingPoster) PostUnfurls(_ context.Context, _, _ string, result domain.UnfurlResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, result)
	return nil
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

const secret = "shh"

func newTestRouter(t *testing.T, poster *recordingPoster, mutate func(*deps.Deps), adapters ...domain.Adapter) http.Handler {
	t.Helper()
	m := metrics.New()
	d := deps.Deps{
		Logger:    logger.NewNop(),
		StartTime: time.Now(),
		Version:   "test",
		Orchestrator: unfurl.New(unfurl.Deps{
			Registry: domain.NewRegistry(adapters...),
			Poster:   poster,
			Dedupe:   index.NewMemoryIndex(100, time.Minute),
			Metrics:  m,
			Logger:   logger.NewNop(),
		}, unfurl.Options{}),
		Metrics:            m,
		SigningSecret:      secret,
		RequestTimeout:     time.Second,
		RateLimitBurst:     100,
		RateLimitPerMinute: 100,
	}
	if mutate != nil {
		mutate(&d)
	}
	return NewRouter(d)
}

func signedRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(slack.HeaderTimestamp, ts)
	req.Header.Set(slack.HeaderSignature, slack.NewVerifier(secret).Sign(ts, []byte(body)))
	return req
}

func TestEventsURLVerification(t *testing.T) {
	router := newTestRouter(t, &recordingPoster{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedRequest(`{"type":"url_verification","challenge":"abc"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["challenge"] != "abc" {
		t.Errorf("challenge = %q", got["challenge"])
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestEventsLinkSharedPostsOnce(t *testing.T) {
	poster := &recordingPoster{}
	router := newTestRouter(t, poster, nil, stubAdapter{})

	body := `{"type":"event_callback","event_id":"Ev1","event":{"type":"link_shared","channel":"C1",
		"message_ts":"1.2","links":[{"url":"https://rm.example.com/issues/1","domain":"rm.example.com"}]}}`

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, signedRequest(body))
		if rec.Code != http.StatusOK {
			t.Fatalf("attempt %d: status = %d", i, rec.Code)
		}
	}

	if got := poster.count(); got != 1 {
		t.Fatalf("posts = %d, want 1 (retry deduplicated)", got)
	}
}

func TestEventsRejections(t *testing.T) {
	tests := []struct {
		name string
		req  func() *http.Request
		want int
	}{
		{
			name: "unsigned",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(`{}`))
			},
			want: http.StatusUnauthorized,
		},
		{
			name: "bad json",
			req:  func() *http.Request { return signedRequest(`{not json`) },
			want: http.StatusBadRequest,
		},
		{
			name: "unknown type",
			req:  func() *http.Request { return signedRequest(`{"type":"app_rate_limited"}`) },
			want: http.StatusBadRequest,
		},
		{
			name: "wrong method",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/slack/events", nil)
			},
			want: http.StatusMethodNotAllowed,
		},
	}

	router := newTestRouter(t, &recordingPoster{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, tt.req())
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestEventsBodyTooLarge(t *testing.T) {
	router := newTestRouter(t, &recordingPoster{}, func(d *deps.Deps) {
		d.SigningSecret = ""
		d.MaxBodyBytes = 16
	})

	req := httptest.NewRequest(http.MethodPost, "/slack/events",
		strings.NewReader(`{"type":"url_verification","challenge":"`+strings.Repeat("x", 64)+`"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestProbes(t *testing.T) {
	tests := []struct {
		name     string
		adapters []domain.Adapter
		path     string
		want     int
	}{
		{"healthz", nil, "/healthz", http.StatusOK},
		{"readyz without adapters", nil, "/readyz", http.StatusServiceUnavailable},
		{"readyz with adapter", []domain.Adapter{stubAdapter{}}, "/readyz", http.StatusOK},
		{"infra", []domain.Adapter{stubAdapter{}}, "/infra", http.StatusOK},
		{"metrics", nil, "/metrics", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &recordingPoster{}, nil, tt.adapters...)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestInfraReportsMemoryDedupe(t *testing.T) {
	router := newTestRouter(t, &recordingPoster{}, nil, stubAdapter{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/infra", nil))

	var got struct {
		Mode       string `json:"mode"`
		Components map[string]struct {
			OK    bool     `json:"ok"`
			Mode  string   `json:"mode"`
			Items []string `json:"items"`
		} `json:"components"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Mode != "operational" {
		t.Errorf("mode = %q", got.Mode)
	}
	if dd := got.Components["dedupe"]; !dd.OK || dd.Mode != "memory" {
		t.Errorf("dedupe = %+v", dd)
	}
	if a := got.Components["adapters"]; len(a.Items) != 1 || a.Items[0] != "stub" {
		t.Errorf("adapters = %+v", a)
	}
}

func TestInfraRestrictedByCIDR(t *testing.T) {
	router := newTestRouter(t, &recordingPoster{}, func(d *deps.Deps) {
		d.AllowedCIDRS = []string{"10.0.0.0/8"}
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	// probes are not restricted
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}
