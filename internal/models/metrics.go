package models

import "time"

// SystemMetrics represents system level figures captured from instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ProgressRuns             uint64    `json:"progress_runs"`
	ProgressStudents         uint64    `json:"progress_students"`
	ProgressFailures         uint64    `json:"progress_failures"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
