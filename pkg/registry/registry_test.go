package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/events"
	"github.com/routepay/routepay/pkg/idgen"
	"github.com/routepay/routepay/pkg/payment"
)

func newTestRegistry(emitter events.Emitter) *Registry {
	clk := &clock.Fixed{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(&idgen.Sequence{}, clk, emitter, nil)
}

func TestUpsertAssignsDefaults(t *testing.T) {
	r := newTestRegistry(nil)

	got := r.Upsert(payment.GatewayConfig{
		TenantID: "tenant_1",
		Gateway:  "razorpay",
		Active:   true,
	})

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, payment.HealthHealthy, got.Health)
	assert.Equal(t, int64(1_000_000_00), got.MaxAmount)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestUpsertKeepsExplicitValues(t *testing.T) {
	r := newTestRegistry(nil)

	got := r.Upsert(payment.GatewayConfig{
		ID:        "gw_custom",
		TenantID:  "tenant_1",
		Gateway:   "razorpay",
		Health:    payment.HealthDegraded,
		MaxAmount: 50_000,
	})

	assert.Equal(t, "gw_custom", got.ID)
	assert.Equal(t, payment.HealthDegraded, got.Health)
	assert.Equal(t, int64(50_000), got.MaxAmount)
}

func TestGetAndList(t *testing.T) {
	r := newTestRegistry(nil)
	r.Upsert(payment.GatewayConfig{TenantID: "tenant_1", Gateway: "razorpay"})
	r.Upsert(payment.GatewayConfig{TenantID: "tenant_1", Gateway: "stripe"})
	r.Upsert(payment.GatewayConfig{TenantID: "tenant_2", Gateway: "payu"})

	got, err := r.Get("tenant_1", "stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", got.Gateway)

	_, err = r.Get("tenant_1", "no_such")
	assert.ErrorIs(t, err, errors.ErrGatewayNotFound)

	assert.Len(t, r.ListByTenant("tenant_1"), 2)
	assert.Len(t, r.ListByTenant("tenant_2"), 1)
	assert.Empty(t, r.ListByTenant("tenant_3"))
	assert.Len(t, r.All(), 3)
}

func TestRecordOutcomeFoldsStats(t *testing.T) {
	r := newTestRegistry(nil)
	r.Upsert(payment.GatewayConfig{TenantID: "tenant_1", Gateway: "razorpay"})

	require.NoError(t, r.RecordOutcome("tenant_1", "razorpay", true, 1000))
	require.NoError(t, r.RecordOutcome("tenant_1", "razorpay", true, 2500))
	require.NoError(t, r.RecordOutcome("tenant_1", "razorpay", false, 500))

	got, err := r.Get("tenant_1", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Stats.TotalTransactions)
	assert.Equal(t, int64(2), got.Stats.SuccessfulCount)
	assert.Equal(t, int64(1), got.Stats.FailedCount)
	// Failed submissions contribute nothing to volume.
	assert.Equal(t, int64(3500), got.Stats.TotalVolume)
	require.NotNil(t, got.Stats.LastTransactionAt)

	err = r.RecordOutcome("tenant_1", "no_such", true, 1)
	assert.ErrorIs(t, err, errors.ErrGatewayNotFound)
}

func TestRecordWebhookFailure(t *testing.T) {
	r := newTestRegistry(nil)
	r.Upsert(payment.GatewayConfig{TenantID: "tenant_1", Gateway: "razorpay"})

	require.NoError(t, r.RecordWebhookFailure("tenant_1", "razorpay"))
	require.NoError(t, r.RecordWebhookFailure("tenant_1", "razorpay"))

	got, err := r.Get("tenant_1", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Stats.WebhookFailures)
}

func TestUpdatePerformance(t *testing.T) {
	r := newTestRegistry(nil)
	r.Upsert(payment.GatewayConfig{TenantID: "tenant_1", Gateway: "razorpay", SuccessRate: 100})

	require.NoError(t, r.UpdatePerformance("tenant_1", "razorpay", 96.5, 230))

	got, err := r.Get("tenant_1", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, 96.5, got.SuccessRate)
	assert.Equal(t, float64(230), got.AvgResponseTime)
}

func TestSetHealthEmitsOnlyOnChange(t *testing.T) {
	bus := events.NewBus()
	var emitted []events.Event
	bus.Subscribe(func(ev events.Event) { emitted = append(emitted, ev) })

	r := newTestRegistry(bus)
	r.Upsert(payment.GatewayConfig{TenantID: "tenant_1", Gateway: "razorpay"})

	require.NoError(t, r.SetHealth("tenant_1", "razorpay", payment.HealthHealthy))
	assert.Empty(t, emitted, "probe confirming current state must not emit")

	require.NoError(t, r.SetHealth("tenant_1", "razorpay", payment.HealthUnhealthy))
	require.Len(t, emitted, 1)
	assert.Equal(t, events.TypeGatewayHealthChanged, emitted[0].Type)
	assert.Equal(t, "tenant_1", emitted[0].TenantID)
	assert.Equal(t, "razorpay", emitted[0].EntityID)
	assert.Equal(t, string(payment.HealthUnhealthy), emitted[0].State)

	require.NoError(t, r.SetHealth("tenant_1", "razorpay", payment.HealthUnhealthy))
	assert.Len(t, emitted, 1)

	got, err := r.Get("tenant_1", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, payment.HealthUnhealthy, got.Health)
	assert.False(t, got.LastHealthCheck.IsZero())

	err = r.SetHealth("tenant_1", "no_such", payment.HealthHealthy)
	assert.ErrorIs(t, err, errors.ErrGatewayNotFound)
}
