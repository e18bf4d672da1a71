package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_events_ingested_total",
			Help: "Total number of raw events read from the filesystem and log sources",
		},
		[]string{"source"},
	)

	LinesParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_log_lines_parsed_total",
			Help: "Total number of daemon log lines by parse result",
		},
		[]string{"result"},
	)

	TransfersFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_transfers_finalized_total",
			Help: "Total number of finalized transfers",
		},
		[]string{"direction", "status"},
	)

	CorrelationPool = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tftpwatch_correlation_pool_size",
			Help: "Number of entries retained by the correlation engine",
		},
		[]string{"pool"},
	)

	CorrelationEvicted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_correlation_evicted_total",
			Help: "Total number of unmatched entries evicted after the maximum age",
		},
		[]string{"pool"},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_alerts_generated_total",
			Help: "Total number of alerts generated",
		},
		[]string{"kind"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_notifications_total",
			Help: "Total number of notification attempts by sink and result",
		},
		[]string{"sink", "result"},
	)

	SinkCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tftpwatch_sink_circuit_state",
			Help: "Circuit breaker state per notification sink (0=closed, 1=half-open, 2=open)",
		},
		[]string{"sink"},
	)

	StorageWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_storage_writes_total",
			Help: "Total number of storage writes by table and result",
		},
		[]string{"table", "result"},
	)

	QueueDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tftpwatch_queue_dropped_total",
			Help: "Total number of items dropped because a queue was full",
		},
		[]string{"queue"},
	)

	TransferSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tftpwatch_transfer_size_bytes",
			Help:    "Size of transferred files",
			Buckets: prometheus.ExponentialBuckets(512, 4, 10),
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tftpwatch_api_request_duration_seconds",
			Help:    "Time taken to serve reporting API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
