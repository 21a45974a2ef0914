package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zapfilter/internal/store"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapfilter_events_total",
			Help: "Events received, by kind.",
		},
		[]string{"event"},
	)
	messagesFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zapfilter_messages_filtered_total",
			Help: "Messages dropped by the allow-list or mention filter.",
		},
	)
	messagesForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zapfilter_messages_forwarded_total",
			Help: "Messages accepted for forwarding.",
		},
	)
	messagesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zapfilter_messages_failed_total",
			Help: "Messages whose forwarding failed after retries.",
		},
	)
	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapfilter_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by outcome.",
		},
		[]string{"outcome"},
	)
	webhookFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapfilter_webhook_failures_total",
			Help: "Exhausted webhook deliveries, by destination.",
		},
		[]string{"destination"},
	)
	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapfilter_alerts_total",
			Help: "Alerts emitted, by level.",
		},
		[]string{"level"},
	)
	connectionUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zapfilter_connection_up",
			Help: "1 while the client session is connected.",
		},
	)
	connectionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zapfilter_connection_transitions_total",
			Help: "Connection state changes, by resulting state.",
		},
		[]string{"state"},
	)
)

// Collector adapts the prometheus counters to the callback interfaces
// the stores and the dispatcher expect. All methods are safe for
// concurrent use.
type Collector struct{}

func NewCollector() *Collector { return &Collector{} }

// EventCounted mirrors a stats-store increment.
func (c *Collector) EventCounted(kind, field string) {
	switch field {
	case store.FieldTotal:
		eventsTotal.WithLabelValues(kind).Inc()
	case store.FieldFiltered:
		messagesFiltered.Inc()
	case store.FieldForwarded:
		messagesForwarded.Inc()
	case store.FieldFailed:
		messagesFailed.Inc()
	}
}

// AlertCounted mirrors an alert-store increment.
func (c *Collector) AlertCounted(level string) {
	alertsTotal.WithLabelValues(level).Inc()
}

// DeliveryCounted records a dispatcher outcome. Destinations only
// label the failure counter to keep cardinality down on the happy
// path.
func (c *Collector) DeliveryCounted(destination, outcome string) {
	webhookDeliveries.WithLabelValues(outcome).Inc()
	if outcome == "failed" {
		webhookFailures.WithLabelValues(destination).Inc()
	}
}

// ConnectionState tracks the canonical session state.
func (c *Collector) ConnectionState(state string) {
	connectionTransitions.WithLabelValues(state).Inc()
	if state == "connected" {
		connectionUp.Set(1)
	} else {
		connectionUp.Set(0)
	}
}

// Handler serves the default registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
