// Package metrics exposes the service counters in the Prometheus format.
//
// Every method is safe on a nil *Metrics, so callers that do not care about
// metrics can pass nil.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unfurl"

// Event kinds.
const (
	EventURLVerification = "url_verification"
	EventLinkShared      = "link_shared"
	EventIgnored         = "ignored"
	EventDuplicate       = "duplicate"
	EventInvalid         = "invalid"
	EventFailed          = "failed"
)

// Link outcomes.
const (
	LinkCard      = "card"
	LinkEmpty     = "empty"
	LinkUnmatched = "unmatched"
	LinkPanic     = "panic"
)

type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	links         *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	posts         *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Slack event envelopes received, by kind.",
		}, []string{"kind"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "Shared links processed, by adapter and outcome.",
		}, []string{"adapter", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent building one preview, by adapter.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"adapter"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "chat.unfurl calls, by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.events,
		m.links,
		m.fetchDuration,
		m.posts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventReceived(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// LinkResolved records one link. adapter is "" for unmatched links.
func (m *Metrics) LinkResolved(adapter, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	if adapter == "" {
		adapter = "none"
	} else {
		m.fetchDuration.WithLabelValues(adapter).Observe(took.Seconds())
	}
	m.links.WithLabelValues(adapter, outcome).Inc()
}

func (m *Metrics) UnfurlPosted(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.posts.WithLabelValues(result).Inc()
}
