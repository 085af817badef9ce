package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the §4.8 Prometheus registry: counters for events
// published/consumed/duplicated/processed, histograms for publish/consume/
// validation latency, and gauges for outbox backlog, pool usage, and
// background-task liveness.
type Metrics struct {
	EventsPublished  *prometheus.CounterVec
	EventsConsumed   *prometheus.CounterVec
	EventsDuplicated *prometheus.CounterVec
	EventsProcessed  *prometheus.CounterVec

	PublishLatency    prometheus.Histogram
	ConsumeLatency    prometheus.Histogram
	ValidationLatency prometheus.Histogram

	OutboxBacklog      prometheus.Gauge
	DBPoolInUse        prometheus.Gauge
	BackgroundTaskLive *prometheus.GaugeVec
}

// NewMetrics registers and returns the full §4.8 metric set against reg.
// Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer-backed reg for production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "order_lifecycle_events_published_total",
			Help: "Outbox events published to the bus by the relay worker, by event type.",
		}, []string{"event_type"}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "order_lifecycle_events_consumed_total",
			Help: "Inbound bus events the consumer handled successfully (duplicates excluded), by event type.",
		}, []string{"event_type"}),
		EventsDuplicated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "order_lifecycle_events_duplicated_total",
			Help: "Inbound events skipped because a processed-event marker already existed.",
		}, []string{"event_type"}),
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "order_lifecycle_events_processed_total",
			Help: "Inbound events whose handler ran to completion and was acked.",
		}, []string{"event_type"}),

		PublishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_lifecycle_publish_latency_seconds",
			Help:    "Time to publish a single outbox row to the bus.",
			Buckets: prometheus.DefBuckets,
		}),
		ConsumeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_lifecycle_consume_latency_seconds",
			Help:    "Time from message fetch to ack/nak/term decision in the consumer.",
			Buckets: prometheus.DefBuckets,
		}),
		ValidationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_lifecycle_validation_latency_seconds",
			Help:    "Time spent validating a user against the cache/directory on order creation.",
			Buckets: prometheus.DefBuckets,
		}),

		OutboxBacklog: factory.NewGauge(prometheus.GaugeOpts{
			Name: "order_lifecycle_outbox_backlog",
			Help: "Outbox rows not yet published, observed on the last relay poll.",
		}),
		DBPoolInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "order_lifecycle_db_pool_in_use",
			Help: "Acquired connections in the pgx pool.",
		}),
		BackgroundTaskLive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "order_lifecycle_background_task_up",
			Help: "Set to 1 at the start of each background loop iteration (relay, processor, consumer); never reset to 0.",
		}, []string{"task"}),
	}
}
