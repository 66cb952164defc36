package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/storage/memory"
)

type sinkCall struct {
	tenantID, gateway string
	successRate       float64
	avgResponseTime   float64
}

type recordingSink struct {
	calls []sinkCall
	err   error
}

func (s *recordingSink) UpdatePerformance(tenantID, gateway string, successRate, avgResponseTime float64) error {
	s.calls = append(s.calls, sinkCall{tenantID, gateway, successRate, avgResponseTime})
	return s.err
}

func TestRecordFoldsOutcomesAndPushesSink(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 3, 1, 12, 15, 0, 0, time.UTC)}
	sink := &recordingSink{}
	agg := New(memory.NewMetricsStore(), sink, clk, nil)
	ctx := context.Background()

	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", true, 200*time.Millisecond))
	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", true, 400*time.Millisecond))
	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", false, 600*time.Millisecond))

	m, err := agg.Current(ctx, "tenant_1", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.TotalCount)
	assert.Equal(t, int64(2), m.SuccessCount)
	assert.InDelta(t, 66.67, m.SuccessRate(), 0.01)
	assert.InDelta(t, 400, m.AvgResponseTime(), 0.01)
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), m.BucketStart)
	assert.Equal(t, time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC), m.BucketEnd)

	// Every outcome pushes the recomputed numbers, not just the last one.
	require.Len(t, sink.calls, 3)
	last := sink.calls[2]
	assert.Equal(t, "tenant_1", last.tenantID)
	assert.Equal(t, "razorpay", last.gateway)
	assert.InDelta(t, 66.67, last.successRate, 0.01)
}

func TestRecordStartsFreshBucketAfterHourBoundary(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 3, 1, 12, 59, 0, 0, time.UTC)}
	agg := New(memory.NewMetricsStore(), nil, clk, nil)
	ctx := context.Background()

	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", false, 100*time.Millisecond))

	clk.Advance(2 * time.Minute)
	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", true, 100*time.Millisecond))

	m, err := agg.Current(ctx, "tenant_1", "razorpay")
	require.NoError(t, err)
	// The 12:00 failure lives in the previous bucket.
	assert.Equal(t, int64(1), m.TotalCount)
	assert.Equal(t, int64(1), m.SuccessCount)
	assert.Equal(t, float64(100), m.SuccessRate())
}

func TestRecordKeepsPairsIndependent(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	agg := New(memory.NewMetricsStore(), nil, clk, nil)
	ctx := context.Background()

	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", true, 100*time.Millisecond))
	require.NoError(t, agg.Record(ctx, "tenant_1", "stripe", false, 100*time.Millisecond))

	razorpay, err := agg.Current(ctx, "tenant_1", "razorpay")
	require.NoError(t, err)
	stripe, err := agg.Current(ctx, "tenant_1", "stripe")
	require.NoError(t, err)
	assert.Equal(t, float64(100), razorpay.SuccessRate())
	assert.Equal(t, float64(0), stripe.SuccessRate())
}

func TestRecordZeroLatencyKeepsAverage(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}
	agg := New(memory.NewMetricsStore(), sink, clk, nil)
	ctx := context.Background()

	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", true, 200*time.Millisecond))
	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", true, 400*time.Millisecond))
	// Webhook-confirmed outcomes record with no latency measurement.
	require.NoError(t, agg.Record(ctx, "tenant_1", "razorpay", false, 0))

	m, err := agg.Current(ctx, "tenant_1", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.TotalCount)
	assert.InDelta(t, 300, m.AvgResponseTime(), 0.01)

	// The pushed numbers count the outcome but keep the measured average.
	last := sink.calls[len(sink.calls)-1]
	assert.InDelta(t, 66.67, last.successRate, 0.01)
	assert.InDelta(t, 300, last.avgResponseTime, 0.01)
}

func TestRecordToleratesSinkFailure(t *testing.T) {
	clk := &clock.Fixed{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	sink := &recordingSink{err: assert.AnError}
	agg := New(memory.NewMetricsStore(), sink, clk, nil)

	// A sink failure is logged, never propagated: the bucket write already
	// succeeded.
	assert.NoError(t, agg.Record(context.Background(), "tenant_1", "razorpay", true, 100*time.Millisecond))
}
