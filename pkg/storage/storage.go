// Package storage defines the repository interfaces the engine persists
// through. Implementations live in storage/memory (tests, single process)
// and storage/dynamo (DynamoDB). Business logic depends only on these
// interfaces so the backing store can be swapped without touching it.
package storage

import (
	"context"
	"time"

	"github.com/routepay/routepay/pkg/payment"
)

// MetricsKey identifies one performance-metrics record. It replaces the
// synthetic "gateway_tenant_bucket" string keys with a comparable composite.
type MetricsKey struct {
	TenantID    string
	Gateway     string
	BucketStart time.Time
}

// BucketFor truncates t to the hourly bucket containing it, in UTC.
func BucketFor(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// KeyFor builds the metrics key for a gateway/tenant pair at time t.
func KeyFor(tenantID, gateway string, t time.Time) MetricsKey {
	return MetricsKey{TenantID: tenantID, Gateway: gateway, BucketStart: BucketFor(t)}
}

// TransactionStore persists transactions. Terminal transactions are never
// deleted; they are retained for audit.
type TransactionStore interface {
	Save(ctx context.Context, tx payment.Transaction) error
	Get(ctx context.Context, id string) (payment.Transaction, error)
}

// WebhookEventStore persists webhook events. GetByCorrelation supports the
// idempotency check on re-delivered gateway event ids.
type WebhookEventStore interface {
	Save(ctx context.Context, ev payment.WebhookEvent) error
	Get(ctx context.Context, id string) (payment.WebhookEvent, error)
	GetByCorrelation(ctx context.Context, gateway, correlationID string) (payment.WebhookEvent, error)
}

// MetricsStore persists per-bucket performance metrics.
type MetricsStore interface {
	Get(ctx context.Context, key MetricsKey) (payment.PerformanceMetrics, error)
	Save(ctx context.Context, key MetricsKey, m payment.PerformanceMetrics) error
}

// RuleStore supplies the tenant's routing rules to the routing engine.
// Rules are edited outside this module.
type RuleStore interface {
	ListByTenant(ctx context.Context, tenantID string) ([]payment.RoutingRule, error)
	Save(ctx context.Context, rule payment.RoutingRule) error
}
