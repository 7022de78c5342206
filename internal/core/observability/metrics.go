// Package observability holds the instruments shared across the backend.
package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type instruments struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	cacheOpTotal         *prometheus.CounterVec
	cacheOpDuration      *prometheus.HistogramVec
	cacheResults         *prometheus.CounterVec
	upstreamLatency      *prometheus.HistogramVec
	upstreamResponses    *prometheus.CounterVec
	pathfinderOutcome    *prometheus.CounterVec
	pathfinderProbes     prometheus.Histogram
	weatherReportTotal   *prometheus.CounterVec
	invalidationsApplied *prometheus.CounterVec
	buildInfo            *prometheus.GaugeVec
}

var (
	mu   sync.Mutex
	inst = newInstruments(prometheus.NewRegistry())
)

// Init rebinds all instruments to the given registerer. Call once at startup
// before any traffic; tests call it with a fresh registry per case.
func Init(reg prometheus.Registerer) {
	mu.Lock()
	defer mu.Unlock()
	inst = newInstruments(reg)
}

func newInstruments(reg prometheus.Registerer) *instruments {
	i := &instruments{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"method", "route", "status"},
		),
		cacheOpTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_op_total",
				Help: "Cache operations by op and outcome.",
			},
			[]string{"op", "outcome"},
		),
		cacheOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redis_operation_duration_seconds",
				Help:    "Duration of Redis operations in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"op"},
		),
		cacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_results_total",
				Help: "Cache lookup results by outcome.",
			},
			[]string{"outcome"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_latency_seconds",
				Help:    "Latency of weather provider calls in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"endpoint"},
		),
		upstreamResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_responses_total",
				Help: "Weather provider responses by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		pathfinderOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pathfinder_outcome_total",
				Help: "Location search outcomes.",
			},
			[]string{"outcome"},
		),
		pathfinderProbes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pathfinder_probes_per_search",
				Help:    "Number of cache probes issued per location search.",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),
		weatherReportTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weather_report_total",
				Help: "Assembled weather reports by origin of their data.",
			},
			[]string{"origin"},
		),
		invalidationsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invalidation_applied_total",
				Help: "Admin invalidation events by action.",
			},
			[]string{"action"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weather_backend_build_info",
				Help: "Build information for the binary.",
			},
			[]string{"version"},
		),
	}
	reg.MustRegister(
		i.httpRequestsTotal,
		i.httpRequestDuration,
		i.cacheOpTotal,
		i.cacheOpDuration,
		i.cacheResults,
		i.upstreamLatency,
		i.upstreamResponses,
		i.pathfinderOutcome,
		i.pathfinderProbes,
		i.weatherReportTotal,
		i.invalidationsApplied,
		i.buildInfo,
	)
	return i
}

func get() *instruments {
	mu.Lock()
	defer mu.Unlock()
	return inst
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	i := get()
	st := strconv.Itoa(status)
	i.httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	i.httpRequestDuration.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	i := get()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.cacheOpTotal.WithLabelValues(op, outcome).Inc()
	i.cacheOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if n > 0 {
		get().cacheResults.WithLabelValues("hit").Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		get().cacheResults.WithLabelValues("miss").Add(float64(n))
	}
}

func ObserveUpstream(endpoint string, err error, durationSeconds float64) {
	i := get()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.upstreamResponses.WithLabelValues(endpoint, outcome).Inc()
	i.upstreamLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

// ObservePathfinder records the terminal outcome of one location search and
// how many cache probes it took to get there.
func ObservePathfinder(outcome string, probes int) {
	i := get()
	i.pathfinderOutcome.WithLabelValues(outcome).Inc()
	i.pathfinderProbes.Observe(float64(probes))
}

func IncWeatherReport(origin string) {
	get().weatherReportTotal.WithLabelValues(origin).Inc()
}

func IncInvalidation(action string) {
	get().invalidationsApplied.WithLabelValues(action).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	get().buildInfo.WithLabelValues(version).Set(1)
}
