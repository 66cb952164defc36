package payment

import "time"

// PerformanceMetrics aggregates one gateway's outcomes for one tenant over
// one fixed time bucket. Records are created lazily on the first transaction
// in a bucket and updated additively afterwards.
type PerformanceMetrics struct {
	TenantID     string    `json:"tenant_id"`
	Gateway      string    `json:"gateway"`
	BucketStart  time.Time `json:"bucket_start"`
	BucketEnd    time.Time `json:"bucket_end"`
	TotalCount   int64     `json:"total_count"`
	SuccessCount int64     `json:"success_count"`
	// TimedCount counts only outcomes that carried a latency measurement;
	// webhook-confirmed outcomes have none and must not drag the average
	// toward zero.
	TimedCount       int64   `json:"timed_count"`
	CumulativeTimeMS float64 `json:"cumulative_time_ms"`
}

// SuccessRate returns successCount/totalCount as a percentage.
func (m PerformanceMetrics) SuccessRate() float64 {
	if m.TotalCount == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.TotalCount) * 100
}

// AvgResponseTime returns the cumulative moving average in milliseconds
// over the outcomes that carried a latency measurement.
func (m PerformanceMetrics) AvgResponseTime() float64 {
	if m.TimedCount == 0 {
		return 0
	}
	return m.CumulativeTimeMS / float64(m.TimedCount)
}

// WithOutcome returns a copy with one outcome folded in. A responseTime of
// zero or less means no latency was measured; the outcome is counted but
// contributes no latency sample.
func (m PerformanceMetrics) WithOutcome(success bool, responseTime time.Duration) PerformanceMetrics {
	m.TotalCount++
	if success {
		m.SuccessCount++
	}
	if responseTime > 0 {
		m.TimedCount++
		m.CumulativeTimeMS += float64(responseTime.Milliseconds())
	}
	return m
}
