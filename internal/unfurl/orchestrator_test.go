package unfurl

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/unfurl/internal/domain"
	"github.com/MrSnakeDoc/unfurl/internal/index"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/metrics"
)

type fakeAdapter struct {
	name   string
	prefix string
	fetch  func(ctx context.Context, rawURL string) *domain.PreviewCard
	calls  atomic.Int32
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Enabled() bool { return true }
func (f *fakeAdapter) Recognizes(rawURL, _ string) bool {
	return strings.HasPrefix(rawURL, f.prefix)
}
func (f *fakeAdapter) Fetch(ctx context.Context, rawURL string) *domain.PreviewCard {
	f.calls.Add(1)
	if f.fetch == nil {
		return &domain.PreviewCard{Title: f.name, TitleLink: rawURL}
	}
	return f.fetch(ctx, rawURL)
}

type postCall struct {
	channel, ts string
	result      domain.UnfurlResult
}

type fakePoster struct {
	mu    sync.Mutex
	calls []postCall
	err   error
	panic bool
}

func (p *fakePoster) PostUnfurls(_ context.Context, channel, ts string, result domain.UnfurlResult) error {
	if p.panic {
		panic("poster exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, postCall{channel: channel, ts: ts, result: result})
	return p.err
}

func (p *fakePoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newOrchestrator(poster Poster, dedupe Deduper, adapters ...domain.Adapter) *Orchestrator {
	return New(Deps{
		Registry: domain.NewRegistry(adapters...),
		Poster:   poster,
		Dedupe:   dedupe,
		Metrics:  metrics.New(),
		Logger:   logger.New("error", false),
	}, Options{MaxConcurrency: 2, FetchTimeout: 200 * time.Millisecond})
}

const linkSharedBody = `{
	"type":"event_callback",
	"event_id":"Ev1",
	"event":{
		"type":"link_shared",
		"channel":"C1",
		"message_ts":"111.222",
		"links":[
			{"url":"https://redmine.example.com/issues/1","domain":"redmine.example.com"},
			{"url":"https://wiki.example.com/doc/a","domain":"wiki.example.com"}
		]
	}
}`

func TestHandleURLVerificationWithoutAdapters(t *testing.T) {
	poster := &fakePoster{}
	o := newOrchestrator(poster, nil)

	resp := o.Handle(context.Background(), []byte(`{"type":"url_verification","challenge":"abc123"}`))
	if resp.Status != http.StatusOK {
		t.Errorf("Handle() status = %d, want 200", resp.Status)
	}
	if body, ok := resp.Body.(challengeBody); !ok || body.Challenge != "abc123" {
		t.Errorf("Handle() body = %#v, want challenge abc123", resp.Body)
	}
	if poster.count() != 0 {
		t.Errorf("poster called %d times, want 0", poster.count())
	}
}

func TestHandleMalformedBody(t *testing.T) {
	adapter := &fakeAdapter{name: "a", prefix: "https://"}
	poster := &fakePoster{}
	o := newOrchestrator(poster, nil, adapter)

	resp := o.Handle(context.Background(), []byte(`{"type":`))
	if resp.Status != http.StatusBadRequest {
		t.Errorf("Handle() status = %d, want 400", resp.Status)
	}
	body, ok := resp.Body.(errorBody)
	if !ok || body.Error != "Invalid JSON in request body" || body.Details == "" {
		t.Errorf("Handle() body = %#v", resp.Body)
	}
	if adapter.calls.Load() != 0 || poster.count() != 0 {
		t.Error("malformed body must not fetch or post")
	}
}

func TestHandleUnknownType(t *testing.T) {
	resp := newOrchestrator(&fakePoster{}, nil).Handle(context.Background(), []byte(`{"type":"app_rate_limited"}`))
	if resp.Status != http.StatusBadRequest {
		t.Errorf("Handle() status = %d, want 400", resp.Status)
	}
	if body, ok := resp.Body.(errorBody); !ok || body.Error != "Unhandled event type" {
		t.Errorf("Handle() body = %#v", resp.Body)
	}
}

func TestHandleAckWithoutPosting(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"other inner event", `{"type":"event_callback","event":{"type":"message","channel":"C1"}}`},
		{"missing event", `{"type":"event_callback"}`},
		{"no links", `{"type":"event_callback","event":{"type":"link_shared","channel":"C1","message_ts":"1","links":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &fakeAdapter{name: "a", prefix: "https://"}
			poster := &fakePoster{}

			resp := newOrchestrator(poster, nil, adapter).Handle(context.Background(), []byte(tt.body))
			if resp.Status != http.StatusOK {
				t.Errorf("Handle() status = %d, want 200", resp.Status)
			}
			if body, ok := resp.Body.(okBody); !ok || !body.OK {
				t.Errorf("Handle() body = %#v, want ok:true", resp.Body)
			}
			if adapter.calls.Load() != 0 || poster.count() != 0 {
				t.Error("expected no fetch and no post")
			}
		})
	}
}

func TestHandlePostsOnce(t *testing.T) {
	redmine := &fakeAdapter{name: "redmine", prefix: "https://redmine."}
	outline := &fakeAdapter{name: "outline", prefix: "https://wiki."}
	poster := &fakePoster{}

	resp := newOrchestrator(poster, nil, redmine, outline).Handle(context.Background(), []byte(linkSharedBody))
	if resp.Status != http.StatusOK {
		t.Fatalf("Handle() status = %d, want 200", resp.Status)
	}
	if poster.count() != 1 {
		t.Fatalf("poster called %d times, want 1", poster.count())
	}

	call := poster.calls[0]
	if call.channel != "C1" || call.ts != "111.222" {
		t.Errorf("PostUnfurls() channel/ts = %s/%s, want C1/111.222", call.channel, call.ts)
	}
	if len(call.result) != 2 {
		t.Errorf("PostUnfurls() result size = %d, want 2", len(call.result))
	}
	if card := call.result["https://redmine.example.com/issues/1"]; card == nil || card.Title != "redmine" {
		t.Errorf("redmine card = %+v", card)
	}
}

func TestHandleFailedAndUnrecognizedLinks(t *testing.T) {
	// one link fails, the other has no adapter
	redmine := &fakeAdapter{
		name:   "redmine",
		prefix: "https://redmine.",
		fetch:  func(context.Context, string) *domain.PreviewCard { return nil },
	}
	poster := &fakePoster{}

	resp := newOrchestrator(poster, nil, redmine).Handle(context.Background(), []byte(linkSharedBody))
	if resp.Status != http.StatusOK {
		t.Errorf("Handle() status = %d, want 200", resp.Status)
	}
	if poster.count() != 0 {
		t.Errorf("poster called %d times, want 0", poster.count())
	}
}

func TestHandlePosterError(t *testing.T) {
	poster := &fakePoster{err: errors.New("slack down")}
	resp := newOrchestrator(poster, nil, &fakeAdapter{name: "a", prefix: "https://"}).
		Handle(context.Background(), []byte(linkSharedBody))

	if resp.Status != http.StatusOK {
		t.Errorf("Handle() status = %d, want 200 when posting fails", resp.Status)
	}
	if poster.count() != 1 {
		t.Errorf("poster called %d times, want 1", poster.count())
	}
}

func TestHandlePanicReturns500(t *testing.T) {
	dedupe := index.NewMemoryIndex(10, time.Minute)
	poster := &fakePoster{panic: true}
	o := newOrchestrator(poster, dedupe, &fakeAdapter{name: "a", prefix: "https://"})

	resp := o.Handle(context.Background(), []byte(linkSharedBody))
	if resp.Status != http.StatusInternalServerError {
		t.Fatalf("Handle() status = %d, want 500", resp.Status)
	}
	body, ok := resp.Body.(errorBody)
	if !ok || body.Error != "Internal server error" || !strings.Contains(body.Details, "poster exploded") {
		t.Errorf("Handle() body = %#v", resp.Body)
	}

	// the failed event stays retryable
	if first, _ := dedupe.MarkSeen(context.Background(), "Ev1"); !first {
		t.Error("event should have been forgotten after a panic")
	}
}

func TestHandleDeduplicatesRetries(t *testing.T) {
	adapter := &fakeAdapter{name: "a", prefix: "https://"}
	poster := &fakePoster{}
	o := newOrchestrator(poster, index.NewMemoryIndex(10, time.Minute), adapter)

	for i := 0; i < 3; i++ {
		if resp := o.Handle(context.Background(), []byte(linkSharedBody)); resp.Status != http.StatusOK {
			t.Fatalf("Handle() #%d status = %d, want 200", i, resp.Status)
		}
	}
	if poster.count() != 1 {
		t.Errorf("poster called %d times, want 1", poster.count())
	}
}

type failingDedupe struct{}

func (failingDedupe) MarkSeen(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingDedupe) Forget(context.Context, string) error { return nil }
func (failingDedupe) Name() string                         { return "broken" }

func TestHandleDedupeFailureProcesses(t *testing.T) {
	poster := &fakePoster{}
	newOrchestrator(poster, failingDedupe{}, &fakeAdapter{name: "a", prefix: "https://"}).
		Handle(context.Background(), []byte(linkSharedBody))

	if poster.count() != 1 {
		t.Errorf("poster called %d times, want 1", poster.count())
	}
}

func TestProcessAdapterPanic(t *testing.T) {
	boom := &fakeAdapter{
		name:   "boom",
		prefix: "https://redmine.",
		fetch:  func(context.Context, string) *domain.PreviewCard { panic("nil map") },
	}
	ok := &fakeAdapter{name: "ok", prefix: "https://wiki."}

	ev := domain.LinkShareEvent{Channel: "C", MessageTS: "1", Links: []domain.LinkCandidate{
		{URL: "https://redmine.example.com/issues/1"},
		{URL: "https://wiki.example.com/doc/a"},
	}}

	result := newOrchestrator(&fakePoster{}, nil, boom, ok).Process(context.Background(), ev)
	if len(result) != 1 || result["https://wiki.example.com/doc/a"] == nil {
		t.Errorf("Process() = %v, want only the wiki card", result.URLs())
	}
}

func TestProcessDuplicateURLs(t *testing.T) {
	adapter := &fakeAdapter{name: "a", prefix: "https://"}
	ev := domain.LinkShareEvent{Links: []domain.LinkCandidate{
		{URL: "https://x/issues/1"},
		{URL: "https://x/issues/1"},
		{URL: "https://x/issues/2"},
	}}

	result := newOrchestrator(nil, nil, adapter).Process(context.Background(), ev)
	if len(result) != 2 {
		t.Errorf("Process() size = %d, want 2", len(result))
	}
	if got := adapter.calls.Load(); got != 2 {
		t.Errorf("Fetch() calls = %d, want 2", got)
	}
}

func TestProcessBoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	adapter := &fakeAdapter{
		name:   "slow",
		prefix: "https://",
		fetch: func(_ context.Context, rawURL string) *domain.PreviewCard {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return &domain.PreviewCard{TitleLink: rawURL}
		},
	}

	ev := domain.LinkShareEvent{}
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		ev.Links = append(ev.Links, domain.LinkCandidate{URL: "https://x/issues/" + id})
	}

	result := newOrchestrator(nil, nil, adapter).Process(context.Background(), ev)
	if len(result) != 6 {
		t.Errorf("Process() size = %d, want 6", len(result))
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestProcessFetchTimeout(t *testing.T) {
	adapter := &fakeAdapter{
		name:   "stuck",
		prefix: "https://",
		fetch: func(ctx context.Context, _ string) *domain.PreviewCard {
			<-ctx.Done()
			return nil
		},
	}
	ev := domain.LinkShareEvent{Links: []domain.LinkCandidate{{URL: "https://x/issues/1"}}}

	start := time.Now()
	result := newOrchestrator(nil, nil, adapter).Process(context.Background(), ev)
	if len(result) != 0 {
		t.Errorf("Process() = %v, want empty", result.URLs())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Process() took %v, fetch timeout not applied", elapsed)
	}
}

func TestAdaptersAndBackend(t *testing.T) {
	o := newOrchestrator(nil, nil, &fakeAdapter{name: "redmine"}, &fakeAdapter{name: "outline"})
	if got := o.Adapters(); len(got) != 2 || got[0] != "redmine" || got[1] != "outline" {
		t.Errorf("Adapters() = %v, want [redmine outline]", got)
	}
	if got := o.DedupeBackend(); got != "none" {
		t.Errorf("DedupeBackend() = %q, want none", got)
	}
}
