package models

import "time"

// SystemMetrics is a lightweight snapshot of process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SourceFetches            uint64    `json:"source_fetches"`
	SourceFailures           uint64    `json:"source_failures"`
	AnalysesRun              uint64    `json:"analyses_run"`
	EventsPushed             uint64    `json:"events_pushed"`
	ActiveSessions           int       `json:"active_sessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
