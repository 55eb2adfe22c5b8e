package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every floorbot collector; it is served by Handler.
var Registry = prometheus.NewRegistry()

var (
	messagesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorbot",
		Name:      "messages_processed_total",
		Help:      "Inbound messages by pipeline outcome.",
	}, []string{"outcome"})

	classifierFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorbot",
		Name:      "classifier_fallbacks_total",
		Help:      "Times a classifier used its deterministic default instead of the provider.",
	}, []string{"classifier"})

	notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorbot",
		Name:      "notifications_total",
		Help:      "Escalation notification sends by result.",
	}, []string{"result"})

	eventsRegistered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "floorbot",
		Name:      "events_registered_total",
		Help:      "Operational events persisted, by event type.",
	}, []string{"event_type"})

	breakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "floorbot",
		Name:      "llm_breaker_state",
		Help:      "Completion provider breaker state (0 closed, 1 half-open, 2 open).",
	})
)

func init() {
	Registry.MustRegister(messagesProcessed, classifierFallbacks, notifications, eventsRegistered, breakerState)
}

func MessageProcessed(outcome string) {
	messagesProcessed.WithLabelValues(outcome).Inc()
}

func ClassifierFallback(classifier string) {
	classifierFallbacks.WithLabelValues(classifier).Inc()
}

func NotificationSent() {
	notifications.WithLabelValues("sent").Inc()
}

func NotificationFailed() {
	notifications.WithLabelValues("failed").Inc()
}

func EventRegistered(eventType string) {
	eventsRegistered.WithLabelValues(eventType).Inc()
}

func SetBreakerState(state float64) {
	breakerState.Set(state)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
