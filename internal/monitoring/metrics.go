package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds application and pipeline counters
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	// Anomaly pipeline
	BidsAnalyzed       int64
	SuspiciousBids     int64
	ProposalsScored    int64
	TrainingRuns       int64
	TrainingFailures   int64
	LastTrainingMillis int64
	NeutralResults     map[string]int64
	NeutralMutex       sync.RWMutex

	// Alert webhook
	WebhookDeliveries int64
	WebhookFailures   int64

	RateLimitIPBlocks      int64
	RateLimitRedisErrors   int64
	RateLimitFallbackCount int64
	RateLimitRouteBlocks   map[string]int64
	RateLimitMutex         sync.RWMutex
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, 1000),
		RequestCountByStatus: make(map[int]int64),
		NeutralResults:       make(map[string]int64),
		RateLimitRouteBlocks: make(map[string]int64),
	}
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	// keep the last 1000 samples
	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.StatusMutex.Lock()
	defer m.StatusMutex.Unlock()
	m.RequestCountByStatus[statusCode]++
}

// RecordAnalysis counts one AnalyzeBid call. errorCode is empty for a real verdict.
func (m *Metrics) RecordAnalysis(suspicious bool, errorCode string) {
	atomic.AddInt64(&m.BidsAnalyzed, 1)
	if suspicious {
		atomic.AddInt64(&m.SuspiciousBids, 1)
	}
	if errorCode != "" {
		m.NeutralMutex.Lock()
		m.NeutralResults[errorCode]++
		m.NeutralMutex.Unlock()
	}
}

// RecordTraining counts one training run
func (m *Metrics) RecordTraining(success bool, duration time.Duration) {
	atomic.AddInt64(&m.TrainingRuns, 1)
	if !success {
		atomic.AddInt64(&m.TrainingFailures, 1)
	}
	atomic.StoreInt64(&m.LastTrainingMillis, duration.Milliseconds())
}

// RecordProposalScored counts one proposal quality evaluation
func (m *Metrics) RecordProposalScored() {
	atomic.AddInt64(&m.ProposalsScored, 1)
}

// RecordWebhookDelivery counts one alert webhook attempt
func (m *Metrics) RecordWebhookDelivery(success bool) {
	atomic.AddInt64(&m.WebhookDeliveries, 1)
	if !success {
		atomic.AddInt64(&m.WebhookFailures, 1)
	}
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	m.ResponseTimesMutex.RUnlock()

	if len(times) == 0 {
		return 0
	}

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetModelStats returns the anomaly pipeline counters
func (m *Metrics) GetModelStats() map[string]interface{} {
	m.NeutralMutex.RLock()
	neutral := make(map[string]int64, len(m.NeutralResults))
	for code, count := range m.NeutralResults {
		neutral[code] = count
	}
	m.NeutralMutex.RUnlock()

	return map[string]interface{}{
		"bids_analyzed":      atomic.LoadInt64(&m.BidsAnalyzed),
		"suspicious_bids":    atomic.LoadInt64(&m.SuspiciousBids),
		"neutral_results":    neutral,
		"proposals_scored":   atomic.LoadInt64(&m.ProposalsScored),
		"training_runs":      atomic.LoadInt64(&m.TrainingRuns),
		"training_failures":  atomic.LoadInt64(&m.TrainingFailures),
		"last_training_ms":   atomic.LoadInt64(&m.LastTrainingMillis),
		"webhook_deliveries": atomic.LoadInt64(&m.WebhookDeliveries),
		"webhook_failures":   atomic.LoadInt64(&m.WebhookFailures),
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)
	avgResponseTime := atomic.LoadInt64(&m.AverageResponseTime)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"avg_response_time_ms":   float64(avgResponseTime) / 1000000,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1000000,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1000000,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1000000,
		"status_code_distribution": m.GetStatusCodeDistribution(),

		"model":      m.GetModelStats(),
		"rate_limit": m.GetRateLimitStats(),
	}
}

// IncrementRateLimitIPBlock increments IP-based rate limit blocks
func (m *Metrics) IncrementRateLimitIPBlock() {
	atomic.AddInt64(&m.RateLimitIPBlocks, 1)
}

// IncrementRateLimitRedisError increments Redis error count for rate limiting
func (m *Metrics) IncrementRateLimitRedisError() {
	atomic.AddInt64(&m.RateLimitRedisErrors, 1)
}

// IncrementRateLimitFallback increments fallback rate limiter usage count
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.RateLimitFallbackCount, 1)
}

// IncrementRateLimitRoute increments rate limit blocks for a route
func (m *Metrics) IncrementRateLimitRoute(route string) {
	m.RateLimitMutex.Lock()
	defer m.RateLimitMutex.Unlock()
	m.RateLimitRouteBlocks[route]++
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	m.RateLimitMutex.RLock()
	routeBlocks := make(map[string]int64, len(m.RateLimitRouteBlocks))
	for k, v := range m.RateLimitRouteBlocks {
		routeBlocks[k] = v
	}
	m.RateLimitMutex.RUnlock()

	return map[string]interface{}{
		"ip_blocks":      atomic.LoadInt64(&m.RateLimitIPBlocks),
		"redis_errors":   atomic.LoadInt64(&m.RateLimitRedisErrors),
		"fallback_count": atomic.LoadInt64(&m.RateLimitFallbackCount),
		"route_blocks":   routeBlocks,
	}
}
