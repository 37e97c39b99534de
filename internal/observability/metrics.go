package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcode_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamcode_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// CodesIssued counts issue calls by outcome ("created" or "reused").
	CodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcode_codes_issued_total",
		Help: "Total number of issue calls by outcome",
	}, []string{"outcome"})

	// CodeCollisions counts generated candidates rejected as occupied, by source
	// ("lookup" for the pre-insert check, "insert" for a unique-key conflict).
	CodeCollisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcode_code_collisions_total",
		Help: "Total number of generated codes rejected because they were occupied",
	}, []string{"source"})

	// CodeSpaceExhausted counts issue calls that ran out of generation attempts.
	CodeSpaceExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamcode_code_space_exhausted_total",
		Help: "Total number of issue calls that exhausted generation attempts",
	})

	// CodeResolutions counts resolve calls by result ("found" or "absent").
	CodeResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcode_code_resolutions_total",
		Help: "Total number of resolve calls by result",
	}, []string{"result"})

	// CodeCacheLookups counts resolve-cache lookups by result ("hit", "miss", "error").
	CodeCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcode_code_cache_lookups_total",
		Help: "Total number of resolve cache lookups by result",
	}, []string{"result"})

	// CodeEventsReceived counts lifecycle events consumed from the events channel by type.
	CodeEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamcode_code_events_received_total",
		Help: "Total number of stream code events received by type",
	}, []string{"type"})

	// LiveSetSize observes how many live records each dedup scan visits.
	LiveSetSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamcode_live_set_size",
		Help:    "Number of live records scanned during issuance dedup",
		Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 5000},
	})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}
