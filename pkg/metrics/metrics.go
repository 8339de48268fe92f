package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EventsIngested counts events accepted by the sentinel engine by kind.
var EventsIngested = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentinel_events_ingested_total",
		Help: "Total number of events ingested by the sentinel engine",
	},
	[]string{"kind"},
)

// AlertsRaised counts market abuse alerts by abuse type and severity.
var AlertsRaised = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sentinel_alerts_total",
		Help: "Total number of market abuse alerts raised",
	},
	[]string{"abuse_type", "severity"},
)

// DetectionLatency records latency distribution for the synchronous
// append+prune+detect path.
var DetectionLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "sentinel_detection_latency_seconds",
		Help:    "Latency in seconds of the synchronous detection path",
		Buckets: prometheus.DefBuckets,
	},
)

// BufferRows tracks the current sliding-window buffer sizes.
var BufferRows = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "sentinel_buffer_rows",
		Help: "Number of rows currently retained in a sliding-window buffer",
	},
	[]string{"buffer"},
)

// Event bus delivery metrics
var (
	BusPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_bus_published_total",
			Help: "Total number of events published on the event bus",
		},
		[]string{"kind"},
	)

	BusDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_bus_delivered_total",
			Help: "Total number of successful handler deliveries",
		},
		[]string{"kind", "handler"},
	)

	BusHandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_bus_handler_failures_total",
			Help: "Total number of handler errors and panics, by handler",
		},
		[]string{"kind", "handler"},
	)
)

func init() {
	prometheus.MustRegister(EventsIngested, AlertsRaised, DetectionLatency, BufferRows)
	prometheus.MustRegister(BusPublished, BusDelivered, BusHandlerFailures)
}
