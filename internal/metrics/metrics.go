package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	ChatIncomingMessages *prometheus.CounterVec
	ChatOutgoingEvents   *prometheus.CounterVec
	DialogueRequests     *prometheus.CounterVec
	DialogueLatency      *prometheus.HistogramVec
	AbacateRequests      *prometheus.CounterVec
	AbacateLatency       *prometheus.HistogramVec
	Errors               *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			ChatIncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_incoming_messages_total",
				Help:      "Total inbound chat messages by transport.",
			}, []string{"transport"}),
			ChatOutgoingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_outgoing_events_total",
				Help:      "Total outbound chat events by event type.",
			}, []string{"event"}),
			DialogueRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dialogue_requests_total",
				Help:      "Total dialogue backend requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			DialogueLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dialogue_request_duration_seconds",
				Help:      "Latency distribution for dialogue backend requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			AbacateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "abacatepay_requests_total",
				Help:      "Total AbacatePay API requests by status.",
			}, []string{"status"}),
			AbacateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "abacatepay_request_duration_seconds",
				Help:      "Latency distribution for AbacatePay API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.ChatIncomingMessages,
			metricsInstance.ChatOutgoingEvents,
			metricsInstance.DialogueRequests,
			metricsInstance.DialogueLatency,
			metricsInstance.AbacateRequests,
			metricsInstance.AbacateLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
