package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/studycal-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	sourceFetch     *prometheus.HistogramVec
	sourceFailures  *prometheus.CounterVec
	windowPartial   prometheus.Counter
	analysisRuns    *prometheus.CounterVec
	analysisLatency prometheus.Observer
	syncEvents      *prometheus.CounterVec
	activeSessions  prometheus.Gauge

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	sourceFetchCount     uint64
	sourceFailureCount   uint64
	analysisCount        uint64
	pushedCount          uint64
	sessionCount         int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	sourceFetch := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_source_fetch_seconds",
		Help:    "Duration of event source fetches",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"source", "outcome"})

	sourceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_source_failures_total",
		Help: "Event source fetches that failed or timed out",
	}, []string{"source"})

	windowPartial := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendar_window_partial_total",
		Help: "Aggregated windows returned with at least one failed source",
	})

	analysisRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "syllabus_analysis_runs_total",
		Help: "Document analysis calls by outcome",
	}, []string{"outcome"})

	analysisLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "syllabus_analysis_seconds",
		Help:    "Duration of document analysis calls",
		Buckets: []float64{1, 5, 10, 20, 40, 60, 90, 120},
	})

	syncEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendar_sync_events_total",
		Help: "Events pushed to the external calendar by target and outcome",
	}, []string{"target", "outcome"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_sessions",
		Help: "Per-user sessions currently held in memory",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		sourceFetch, sourceFailures, windowPartial, analysisRuns, analysisLatency, syncEvents, activeSessions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		sourceFetch:     sourceFetch,
		sourceFailures:  sourceFailures,
		windowPartial:   windowPartial,
		analysisRuns:    analysisRuns,
		analysisLatency: analysisLatency,
		syncEvents:      syncEvents,
		activeSessions:  activeSessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveSourceFetch records one adapter fetch.
func (m *MetricsService) ObserveSourceFetch(source models.SourceKind, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.sourceFailures.WithLabelValues(string(source)).Inc()
		atomic.AddUint64(&m.sourceFailureCount, 1)
	}
	m.sourceFetch.WithLabelValues(string(source), outcome).Observe(duration.Seconds())
	atomic.AddUint64(&m.sourceFetchCount, 1)
}

// RecordPartialWindow counts a degraded aggregation.
func (m *MetricsService) RecordPartialWindow() {
	if m == nil {
		return
	}
	m.windowPartial.Inc()
}

// ObserveAnalysis records a document service call.
func (m *MetricsService) ObserveAnalysis(duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.analysisRuns.WithLabelValues(outcome).Inc()
	m.analysisLatency.Observe(duration.Seconds())
	atomic.AddUint64(&m.analysisCount, 1)
}

// RecordSync records per-event outcomes of a push.
func (m *MetricsService) RecordSync(target string, pushed, failed int) {
	if m == nil {
		return
	}
	m.syncEvents.WithLabelValues(target, "pushed").Add(float64(pushed))
	m.syncEvents.WithLabelValues(target, "failed").Add(float64(failed))
	atomic.AddUint64(&m.pushedCount, uint64(pushed))
}

// SetActiveSessions publishes the in-memory session count.
func (m *MetricsService) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
	atomic.StoreInt64(&m.sessionCount, int64(n))
}

// Snapshot returns aggregated metrics suitable for the system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SourceFetches:            atomic.LoadUint64(&m.sourceFetchCount),
		SourceFailures:           atomic.LoadUint64(&m.sourceFailureCount),
		AnalysesRun:              atomic.LoadUint64(&m.analysisCount),
		EventsPushed:             atomic.LoadUint64(&m.pushedCount),
		ActiveSessions:           int(atomic.LoadInt64(&m.sessionCount)),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
