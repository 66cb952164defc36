// Package metrics maintains the rolling per-gateway performance numbers the
// routing engine ranks by. Outcomes fold into hourly (gateway, tenant)
// buckets and the derived success rate and average response time are pushed
// into the gateway registry synchronously, so the next routing decision
// always sees fresh numbers.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/storage"
)

// PerformanceSink receives the recomputed numbers after every outcome.
// The gateway registry implements it.
type PerformanceSink interface {
	UpdatePerformance(tenantID, gateway string, successRate, avgResponseTime float64) error
}

// Aggregator folds transaction and webhook outcomes into bucketed metrics.
type Aggregator struct {
	store storage.MetricsStore
	sink  PerformanceSink
	clock clock.Clock
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Aggregator.
func New(store storage.MetricsStore, sink PerformanceSink, clk clock.Clock, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		store: store,
		sink:  sink,
		clock: clk,
		log:   log.With(slog.String("component", "performance-aggregator")),
		locks: make(map[string]*sync.Mutex),
	}
}

// Record folds one outcome into the current bucket for (gateway, tenant) and
// pushes the updated numbers to the sink. Writes for the same pair are
// serialized; different pairs proceed concurrently.
func (a *Aggregator) Record(ctx context.Context, tenantID, gateway string, success bool, responseTime time.Duration) error {
	lock := a.pairLock(tenantID, gateway)
	lock.Lock()
	defer lock.Unlock()

	key := storage.KeyFor(tenantID, gateway, a.clock.Now())
	m, err := a.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load metrics bucket: %w", err)
	}
	if m.BucketEnd.IsZero() {
		m.TenantID = tenantID
		m.Gateway = gateway
		m.BucketStart = key.BucketStart
		m.BucketEnd = key.BucketStart.Add(time.Hour)
	}
	m = m.WithOutcome(success, responseTime)
	if err := a.store.Save(ctx, key, m); err != nil {
		return fmt.Errorf("save metrics bucket: %w", err)
	}

	if a.sink != nil {
		if err := a.sink.UpdatePerformance(tenantID, gateway, m.SuccessRate(), m.AvgResponseTime()); err != nil {
			a.log.Warn("performance push failed",
				"tenant", tenantID, "gateway", gateway, "error", err)
		}
	}

	a.log.Debug("metrics updated",
		"tenant", tenantID,
		"gateway", gateway,
		"success_rate", m.SuccessRate(),
		"avg_response_ms", m.AvgResponseTime(),
		"total", m.TotalCount)
	return nil
}

// Current returns the metrics bucket covering now for (gateway, tenant).
func (a *Aggregator) Current(ctx context.Context, tenantID, gateway string) (payment.PerformanceMetrics, error) {
	return a.store.Get(ctx, storage.KeyFor(tenantID, gateway, a.clock.Now()))
}

func (a *Aggregator) pairLock(tenantID, gateway string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := tenantID + "\x00" + gateway
	lock, ok := a.locks[k]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[k] = lock
	}
	return lock
}
