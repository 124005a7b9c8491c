package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paging_loads_total",
			Help: "The total number of paging source loads",
		},
		[]string{"type", "outcome"},
	)

	PageLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paging_load_duration_seconds",
			Help:    "Duration of paging source loads",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	LoadsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paging_loads_in_flight",
			Help: "Number of page loads currently running",
		},
	)

	StaleLoadsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paging_stale_loads_dropped_total",
			Help: "Loads whose result was discarded because the pager moved on",
		},
		[]string{"type"},
	)

	BackendRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Duration of backend requests including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	BackendResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_responses_total",
			Help: "Backend responses by HTTP status code",
		},
		[]string{"status_code"},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backend_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	RepositoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_fetch_errors_total",
			Help: "Repository fetch failures by kind",
		},
		[]string{"kind"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_cache_lookups_total",
			Help: "Page cache lookups by result",
		},
		[]string{"backend", "result"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of open presentation sessions",
		},
	)

	QueriesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "search_queries_committed_total",
			Help: "Debounced queries that started a new pager",
		},
	)

	DLQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_published_total",
			Help: "Total number of messages published to DLQ",
		},
		[]string{"query"},
	)

	ArchiveSyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archive_sync_duration_seconds",
			Help:    "Duration of archiving one page event",
			Buckets: prometheus.DefBuckets,
		},
	)

	ArticlesArchived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_archived_total",
			Help: "Articles written to the archive by outcome",
		},
		[]string{"status"},
	)

	ArticlesDuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "articles_duplicates_skipped_total",
			Help: "The total number of articles skipped because they are already archived unchanged",
		},
	)

	Connectivity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "network_connected",
			Help: "1 when the backend is reachable, 0 otherwise",
		},
	)
)
