package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Sync metrics
	SyncsTotal        *prometheus.CounterVec
	SyncDuration      *prometheus.HistogramVec
	SyncRecordsParsed *prometheus.CounterVec
	SyncAdditions     *prometheus.CounterVec
	SyncRemovals      *prometheus.CounterVec

	// Parse metrics
	ParseErrorsTotal *prometheus.CounterVec

	// Publish metrics
	PublishesTotal  *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
	PublishedBytes  *prometheus.CounterVec

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec
	StoreErrorsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		SyncsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_syncs_total",
				Help: "Total number of repository syncs",
			},
			[]string{"repository", "status"},
		),
		SyncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpmmirror_sync_duration_seconds",
				Help:    "Repository sync duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"repository"},
		),
		SyncRecordsParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_sync_records_parsed_total",
				Help: "Total number of content records parsed during syncs",
			},
			[]string{"repository", "record_type"},
		),
		SyncAdditions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_sync_additions_total",
				Help: "Total number of records added by syncs",
			},
			[]string{"repository", "record_type"},
		),
		SyncRemovals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_sync_removals_total",
				Help: "Total number of records removed by syncs",
			},
			[]string{"repository", "record_type"},
		),
		ParseErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_parse_errors_total",
				Help: "Total number of metadata parse failures",
			},
			[]string{"format"},
		),
		PublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_publishes_total",
				Help: "Total number of metadata tree publishes",
			},
			[]string{"repository", "status"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpmmirror_publish_duration_seconds",
				Help:    "Metadata tree publish duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"repository"},
		),
		PublishedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_published_bytes_total",
				Help: "Total bytes of generated metadata files",
			},
			[]string{"repository", "file_type"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_store_operations_total",
				Help: "Total number of content store operations",
			},
			[]string{"operation", "status"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmmirror_store_errors_total",
				Help: "Total number of content store errors",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.SyncsTotal,
		m.SyncDuration,
		m.SyncRecordsParsed,
		m.SyncAdditions,
		m.SyncRemovals,
		m.ParseErrorsTotal,
		m.PublishesTotal,
		m.PublishDuration,
		m.PublishedBytes,
		m.StoreOperationsTotal,
		m.StoreErrorsTotal,
	)

	return m
}
