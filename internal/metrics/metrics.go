// Package metrics defines the Prometheus collectors of the chat service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Metrics groups the chat service collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesAppended  *prometheus.CounterVec
	EmptySubmissions  prometheus.Counter
	RepliesPending    prometheus.Gauge
	ReplyLatency      prometheus.Histogram
	ActiveSessions    prometheus.Gauge
	DroppedDeliveries prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_appended_total",
			Help:      "Messages appended to conversations, by sender.",
		}, []string{"sender"}),
		EmptySubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_submissions_total",
			Help:      "Submissions ignored because the text was blank.",
		}),
		RepliesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replies_pending",
			Help:      "Deferred bot replies scheduled but not yet appended.",
		}),
		ReplyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_seconds",
			Help:      "Time between a submission and its bot reply.",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 1, 2, 5},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open chat sessions.",
		}),
		DroppedDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_drops_total",
			Help:      "Messages not delivered to a subscriber whose buffer was full.",
		}),
	}

	m.registry.MustRegister(
		m.MessagesAppended,
		m.EmptySubmissions,
		m.RepliesPending,
		m.ReplyLatency,
		m.ActiveSessions,
		m.DroppedDeliveries,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
