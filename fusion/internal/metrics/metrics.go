package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons for EventsDropped.
const (
	ReasonQueueFull    = "queue_full"
	ReasonEvicted      = "evicted"
	ReasonWriterFailed = "writer_failed"
	ReasonClosed       = "closed"
)

var (
	// Ingestion metrics
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_events_received_total",
			Help: "Total number of notifications received from the host",
		},
		[]string{"kind"},
	)

	EventsFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_events_filtered_total",
			Help: "Total number of events rejected by the account/transaction filter",
		},
		[]string{"kind"},
	)

	EventsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_events_enqueued_total",
			Help: "Total number of events accepted by the ingestion queue",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_events_dropped_total",
			Help: "Total number of events that were not persisted",
		},
		[]string{"kind", "reason"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusion_queue_depth",
			Help: "Current depth of the ingestion queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusion_queue_capacity",
			Help: "Maximum capacity of the ingestion queue",
		},
	)

	// Writer metrics
	WriterUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusion_writer_up",
			Help: "1 while the background writer is running, 0 after it stopped",
		},
	)

	EventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_events_written_total",
			Help: "Total number of records appended to output streams",
		},
		[]string{"kind"},
	)

	BytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_bytes_written_total",
			Help: "Total bytes of encoded records appended to output streams",
		},
		[]string{"kind"},
	)

	// Storage metrics
	AppendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fusion_storage_append_duration_seconds",
			Help:    "Duration of a single record append in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"backend"},
	)

	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fusion_storage_flush_duration_seconds",
			Help:    "Duration of stream flushes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_storage_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"backend"},
	)
)
