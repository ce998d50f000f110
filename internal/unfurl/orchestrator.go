// Package unfurl turns Slack link_shared events into preview cards and posts
// them back to the conversation.
package unfurl

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MrSnakeDoc/unfurl/internal/domain"
	"github.com/MrSnakeDoc/unfurl/internal/logger"
	"github.com/MrSnakeDoc/unfurl/internal/metrics"
	"github.com/MrSnakeDoc/unfurl/internal/slack"
)

const (
	// DefaultMaxConcurrency bounds the links fetched at once for one event.
	DefaultMaxConcurrency = 4
	// DefaultFetchTimeout bounds one adapter call.
	DefaultFetchTimeout = 5 * time.Second
)

// Poster delivers the cards of one message.
type Poster interface {
	PostUnfurls(ctx context.Context, channel, ts string, result domain.UnfurlResult) error
}

// Deduper remembers handled event IDs so that Slack retries are acked once.
type Deduper interface {
	MarkSeen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
	Name() string
}

// Response is what the HTTP layer writes back: a status code and a JSON body.
type Response struct {
	Status int
	Body   any
}

type okBody struct {
	OK bool `json:"ok"`
}

type challengeBody struct {
	Challenge string `json:"challenge"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Options tunes the fan-out; zero values get the defaults.
type Options struct {
	MaxConcurrency int
	FetchTimeout   time.Duration
}

// Deps are the collaborators of an Orchestrator. Dedupe and Metrics are optional.
type Deps struct {
	Registry *domain.Registry
	Poster   Poster
	Dedupe   Deduper
	Metrics  *metrics.Metrics
	Logger   logger.Logger
}

// Orchestrator routes each shared link to its adapter and posts the results.
type Orchestrator struct {
	registry       *domain.Registry
	poster         Poster
	dedupe         Deduper
	metrics        *metrics.Metrics
	logger         logger.Logger
	maxConcurrency int
	fetchTimeout   time.Duration
	flight         singleflight.Group
}

func New(d Deps, opts Options) *Orchestrator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if d.Registry == nil {
		d.Registry = domain.NewRegistry()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}

	return &Orchestrator{
		registry:       d.Registry,
		poster:         d.Poster,
		dedupe:         d.Dedupe,
		metrics:        d.Metrics,
		logger:         d.Logger,
		maxConcurrency: opts.MaxConcurrency,
		fetchTimeout:   opts.FetchTimeout,
	}
}

// Handle answers one Events API request body.
//
//   - url_verification: 200 {challenge}
//   - event_callback: 200 {ok:true}, after posting any previews
//   - any other type: 400 {error}
//   - malformed JSON: 400 {error, details}
//   - unexpected failure: 500 {error, details}
func (o *Orchestrator) Handle(ctx context.Context, body []byte) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Unhandled panic while handling event",
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			o.metrics.EventReceived(metrics.EventFailed)
			resp = Response{
				Status: http.StatusInternalServerError,
				Body:   errorBody{Error: "Internal server error", Details: fmt.Sprint(r)},
			}
		}
	}()

	env, err := slack.ParseEnvelope(body)
	if err != nil {
		o.logger.Warn("Failed to parse event body", logger.Error(err))
		o.metrics.EventReceived(metrics.EventInvalid)
		return Response{
			Status: http.StatusBadRequest,
			Body:   errorBody{Error: "Invalid JSON in request body", Details: err.Error()},
		}
	}

	switch env.Type {
	case slack.TypeURLVerification:
		if o.registry.Len() == 0 {
			o.logger.Info("url_verification received, but no adapters enabled")
		}
		o.metrics.EventReceived(metrics.EventURLVerification)
		return Response{Status: http.StatusOK, Body: challengeBody{Challenge: env.Challenge}}

	case slack.TypeEventCallback:
		o.handleCallback(ctx, env)
		return Response{Status: http.StatusOK, Body: okBody{OK: true}}

	default:
		o.logger.Warn("Unhandled event type", logger.String("type", env.Type))
		o.metrics.EventReceived(metrics.EventInvalid)
		return Response{Status: http.StatusBadRequest, Body: errorBody{Error: "Unhandled event type"}}
	}
}

func (o *Orchestrator) handleCallback(ctx context.Context, env *slack.Envelope) {
	ev, ok := env.LinkShare()
	if !ok {
		o.logger.Info("Ignoring event_callback", logger.String("event_type", env.EventType()))
		o.metrics.EventReceived(metrics.EventIgnored)
		return
	}
	if len(ev.Links) == 0 {
		o.metrics.EventReceived(metrics.EventIgnored)
		return
	}

	log := o.logger.With(
		logger.String("event_id", ev.EventID),
		logger.String("channel", ev.Channel),
		logger.String("ts", ev.MessageTS))

	if !o.markSeen(ctx, ev.EventID, log) {
		log.Info("Duplicate event, already handled")
		o.metrics.EventReceived(metrics.EventDuplicate)
		return
	}
	o.metrics.EventReceived(metrics.EventLinkShared)

	// a failed attempt must stay retryable
	defer func() {
		if r := recover(); r != nil {
			o.forget(ctx, ev.EventID, log)
			panic(r)
		}
	}()

	result := o.Process(ctx, ev)
	if len(result) == 0 {
		log.Info("No previews generated", logger.Int("links", len(ev.Links)))
		return
	}
	if o.poster == nil {
		log.Warn("No poster configured, dropping previews", logger.Int("previews", len(result)))
		return
	}

	err := o.poster.PostUnfurls(ctx, ev.Channel, ev.MessageTS, result)
	o.metrics.UnfurlPosted(err)
	if err != nil {
		log.Error("Failed to post unfurls", logger.Strings("urls", result.URLs()), logger.Error(err))
		return
	}
	log.Info("Posted unfurls", logger.Int("previews", len(result)), logger.Int("links", len(ev.Links)))
}

// markSeen reports whether the event should be processed. A dedupe backend
// failure lets the event through.
func (o *Orchestrator) markSeen(ctx context.Context, eventID string, log logger.Logger) bool {
	if o.dedupe == nil || eventID == "" {
		return true
	}
	first, err := o.dedupe.MarkSeen(ctx, eventID)
	if err != nil {
		log.Warn("Dedupe lookup failed, processing anyway",
			logger.String("backend", o.dedupe.Name()), logger.Error(err))
		return true
	}
	return first
}

func (o *Orchestrator) forget(ctx context.Context, eventID string, log logger.Logger) {
	if o.dedupe == nil || eventID == "" {
		return
	}
	if err := o.dedupe.Forget(ctx, eventID); err != nil {
		log.Warn("Failed to forget event", logger.Error(err))
	}
}

type job struct {
	url     string
	adapter domain.Adapter
}

// Process builds the preview of every recognized link of ev.
//
// Links are fetched in parallel, each with its own timeout and result slot;
// the map is assembled once all fetches are done. A URL shared twice is
// fetched once. Failed, unrecognized and panicking links are left out.
func (o *Orchestrator) Process(ctx context.Context, ev domain.LinkShareEvent) domain.UnfurlResult {
	jobs := make([]job, 0, len(ev.Links))
	planned := make(map[string]bool, len(ev.Links))

	for _, link := range ev.Links {
		if planned[link.URL] {
			continue
		}
		adapter := o.registry.Match(link.URL, link.DomainHint)
		if adapter == nil {
			o.logger.Debug("No adapter for link",
				logger.String("url", link.URL), logger.String("domain", link.DomainHint))
			o.metrics.LinkResolved("", metrics.LinkUnmatched, 0)
			continue
		}
		o.logger.Debug("Matched link",
			logger.String("url", link.URL), logger.String("adapter", adapter.Name()))
		planned[link.URL] = true
		jobs = append(jobs, job{url: link.URL, adapter: adapter})
	}

	cards := make([]*domain.PreviewCard, len(jobs))

	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			cards[i] = o.fetch(ctx, j.adapter, j.url)
			return nil
		})
	}
	_ = g.Wait()

	result := make(domain.UnfurlResult, len(jobs))
	for i, j := range jobs {
		if cards[i] != nil {
			result[j.url] = cards[i]
		}
	}
	return result
}

// fetch runs one adapter call; concurrent calls for the same link share one fetch.
func (o *Orchestrator) fetch(ctx context.Context, adapter domain.Adapter, rawURL string) (card *domain.PreviewCard) {
	start := time.Now()
	outcome := metrics.LinkEmpty

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Adapter panicked",
				logger.String("adapter", adapter.Name()),
				logger.String("url", rawURL),
				logger.Any("panic", r))
			card = nil
			outcome = metrics.LinkPanic
		}
		o.metrics.LinkResolved(adapter.Name(), outcome, time.Since(start))
	}()

	v, _, _ := o.flight.Do(adapter.Name()+"|"+rawURL, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
		return adapter.Fetch(fetchCtx, rawURL), nil
	})

	card, _ = v.(*domain.PreviewCard)
	if card != nil {
		outcome = metrics.LinkCard
	}
	return card
}

// Adapters lists the enabled adapters, in match order.
func (o *Orchestrator) Adapters() []string {
	return o.registry.Names()
}

// DedupeBackend names the dedupe backend, or "none".
func (o *Orchestrator) DedupeBackend() string {
	if o.dedupe == nil {
		return "none"
	}
	return o.dedupe.Name()
}
