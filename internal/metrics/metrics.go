package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector of the service. It is separate from the
// prometheus default registry so tests can gather from it directly.
var Registry = prometheus.NewRegistry()

var (
	SamplesIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_samples_ingested_total",
		Help: "Telemetry samples received, by result.",
	}, []string{"result"})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_status_transitions_total",
		Help: "Derived status changes, by new status.",
	}, []string{"status"})

	AlertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_alerts_raised_total",
		Help: "Alert episodes opened, by kind.",
	}, []string{"kind"})

	AlertsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_alerts_resolved_total",
		Help: "Alert episodes closed, by kind.",
	}, []string{"kind"})

	DeliveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_delivery_attempts_total",
		Help: "Notification attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})

	DispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "safety_dispatch_duration_seconds",
		Help:    "Wall time of a full dispatch across all contacts.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	SinkDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_sink_drops_total",
		Help: "Pipeline events dropped because a sink channel was full.",
	}, []string{"sink"})

	ArchiveWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "safety_archive_writes_total",
		Help: "Rows written to the archive, by result.",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		SamplesIngested,
		StatusTransitions,
		AlertsRaised,
		AlertsResolved,
		DeliveryAttempts,
		DispatchDuration,
		SinkDrops,
		ArchiveWrites,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
