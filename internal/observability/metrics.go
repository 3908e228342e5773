package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/weather-watchlist-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap API call rate by status. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Circuit breaker state for the weather API (0 closed, 1 half-open, 2 open).
	CircuitBreakerState prometheus.Gauge

	// Sweeps by result (completed, failed, skipped). Skipped means the previous sweep was still running.
	SweepsTotal *prometheus.CounterVec

	// Wall time of one full-watchlist sweep.
	SweepDuration prometheus.Histogram

	// Unix time of the last completed sweep. Watch for: staleness > 2x sweep interval.
	LastSweepTimestamp prometheus.Gauge

	// Per-city check outcomes (stored, fetch_failed).
	CityChecksTotal *prometheus.CounterVec

	// Alerts raised by kind.
	AlertsRaisedTotal *prometheus.CounterVec

	// Store write/read failures by operation.
	StoreErrorsTotal *prometheus.CounterVec

	// Provider lookup cache hits for watchlist validation.
	CacheHitsTotal *prometheus.CounterVec

	// Cache errors by operation.
	CacheErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	checkGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weatherApiCircuitBreakerState",
			Help: "Weather API circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
	)
	SweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweepsTotal",
			Help: "Watchlist sweeps by result (completed, failed, skipped)",
		},
		[]string{"result"},
	)
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweepDurationSeconds",
			Help:    "Duration of a full watchlist sweep in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	LastSweepTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lastSweepTimestampSeconds",
			Help: "Unix time when the last sweep completed",
		},
	)
	CityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cityChecksTotal",
			Help: "Per-city checks by outcome (stored, fetch_failed)",
		},
		[]string{"outcome"},
	)
	AlertsRaisedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertsRaisedTotal",
			Help: "Alerts raised by kind",
		},
		[]string{"kind"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeErrorsTotal",
			Help: "Store operation failures by operation",
		},
		[]string{"op"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Provider lookup cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache errors by operation",
		},
		[]string{"op"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, CircuitBreakerState,
		SweepsTotal, SweepDuration, LastSweepTimestamp,
		CityChecksTotal, AlertsRaisedTotal, StoreErrorsTotal,
		CacheHitsTotal, CacheErrorsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterCheckGauges registers sliding-window gauges over per-city check outcomes.
// Call from main after config load with the degraded window.
func RegisterCheckGauges(window time.Duration) {
	checkGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "cityChecksInWindow",
					Help: "Per-city checks (success + failure) in the sliding window",
				},
				func() float64 {
					_, total := traffic.ErrorRate(window)
					return float64(total)
				},
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "cityCheckFailuresInWindow",
					Help: "Per-city fetch failures in the sliding window",
				},
				func() float64 {
					failures, _ := traffic.ErrorRate(window)
					return float64(failures)
				},
			),
		)
	})
}

// RecordSweep records the outcome and duration of a sweep.
func RecordSweep(result string, duration time.Duration) {
	SweepsTotal.WithLabelValues(result).Inc()
	if result == "skipped" {
		return
	}
	SweepDuration.Observe(duration.Seconds())
	LastSweepTimestamp.SetToCurrentTime()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
