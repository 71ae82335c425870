// Package metrics provides Prometheus metrics for the basket reader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the basket reader.
type Metrics struct {
	// Basket metrics
	BasketsFetched *prometheus.CounterVec
	BasketsDecoded *prometheus.CounterVec
	BasketsFailed  *prometheus.CounterVec

	// Byte metrics
	BytesRead         *prometheus.CounterVec
	BytesDecompressed *prometheus.CounterVec

	// Timing metrics
	FetchDuration      *prometheus.HistogramVec
	DecodeDuration     *prometheus.HistogramVec
	ArrayBuildDuration *prometheus.HistogramVec

	// Cache metrics
	ArrayCacheHits   prometheus.Counter
	ArrayCacheMisses prometheus.Counter
	ArrayCacheBytes  prometheus.Gauge

	// Pipeline metrics
	WorkerQueueDepth prometheus.Gauge
	InFlightBaskets  prometheus.Gauge

	// Error metrics
	SourceErrors *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // Address for metrics HTTP server (e.g., ":9090")
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "basket_reader"
	}

	m := &Metrics{
		BasketsFetched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "baskets_fetched_total",
				Help:      "Total number of baskets fetched from the source",
			},
			[]string{"object", "branch"},
		),
		BasketsDecoded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "baskets_decoded_total",
				Help:      "Total number of baskets decompressed and interpreted",
			},
			[]string{"object", "branch"},
		),
		BasketsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "baskets_failed_total",
				Help:      "Total number of baskets that failed fetching or decoding",
			},
			[]string{"object", "branch"},
		),
		BytesRead: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_read_total",
				Help:      "Total compressed bytes read from the source",
			},
			[]string{"object"},
		),
		BytesDecompressed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_decompressed_total",
				Help:      "Total uncompressed bytes produced by decoding",
			},
			[]string{"object"},
		),
		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time to fetch one basket's byte range from the source",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~6.5s
			},
			[]string{"object"},
		),
		DecodeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decode_duration_seconds",
				Help:      "Time to decompress and interpret one basket",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
			},
			[]string{"object"},
		),
		ArrayBuildDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "array_build_duration_seconds",
				Help:      "End-to-end time to materialize one branch array",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
			},
			[]string{"object", "branch"},
		),
		ArrayCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "array_cache_hits_total",
				Help:      "Total number of array cache hits",
			},
		),
		ArrayCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "array_cache_misses_total",
				Help:      "Total number of array cache misses",
			},
		),
		ArrayCacheBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "array_cache_bytes",
				Help:      "Current size of the array cache in bytes",
			},
		),
		WorkerQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Current number of tasks queued on the decode executor",
			},
		),
		InFlightBaskets: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_baskets",
				Help:      "Number of baskets currently being fetched or decoded",
			},
		),
		SourceErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of source read errors",
			},
			[]string{"source_type"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// StartServer starts an HTTP server for Prometheus metrics scraping.
// Blocks until the server exits.
func StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return http.ListenAndServe(address, mux)
}
