// Package registry holds the per-tenant gateway configurations and their
// live health/performance snapshot. Reads are concurrent; writes are
// serialized per (tenant, gateway) by the registry lock.
package registry

import (
	"log/slog"
	"sync"

	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/events"
	"github.com/routepay/routepay/pkg/idgen"
	"github.com/routepay/routepay/pkg/payment"
)

type tenantKey struct {
	tenantID string
	gateway  string
}

// Registry is the authoritative in-process view of gateway configurations.
type Registry struct {
	mu      sync.RWMutex
	configs map[tenantKey]payment.GatewayConfig
	ids     idgen.Generator
	clock   clock.Clock
	emitter events.Emitter
	log     *slog.Logger
}

// New creates an empty Registry.
func New(ids idgen.Generator, clk clock.Clock, emitter events.Emitter, log *slog.Logger) *Registry {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		configs: make(map[tenantKey]payment.GatewayConfig),
		ids:     ids,
		clock:   clk,
		emitter: emitter,
		log:     log.With(slog.String("component", "gateway-registry")),
	}
}

// Upsert adds or replaces a gateway configuration. A missing id is assigned.
func (r *Registry) Upsert(cfg payment.GatewayConfig) payment.GatewayConfig {
	now := r.clock.Now()
	if cfg.ID == "" {
		cfg.ID = r.ids.NewID(idgen.PrefixGateway)
		cfg.CreatedAt = now
	}
	if cfg.Health == "" {
		cfg.Health = payment.HealthHealthy
	}
	if cfg.MaxAmount == 0 {
		cfg.MaxAmount = 1_000_000_00
	}
	cfg.UpdatedAt = now

	r.mu.Lock()
	r.configs[tenantKey{cfg.TenantID, cfg.Gateway}] = cfg
	r.mu.Unlock()

	r.log.Info("gateway configuration upserted",
		"tenant", cfg.TenantID, "gateway", cfg.Gateway, "active", cfg.Active)
	return cfg
}

// Get returns the configuration for one gateway of a tenant.
func (r *Registry) Get(tenantID, gateway string) (payment.GatewayConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[tenantKey{tenantID, gateway}]
	if !ok {
		return payment.GatewayConfig{}, errors.ErrGatewayNotFound
	}
	return cfg, nil
}

// All returns copies of every registered configuration, for health sweeps.
func (r *Registry) All() []payment.GatewayConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]payment.GatewayConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	return out
}

// ListByTenant returns copies of all configurations for a tenant.
func (r *Registry) ListByTenant(tenantID string) []payment.GatewayConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []payment.GatewayConfig
	for key, cfg := range r.configs {
		if key.tenantID == tenantID {
			out = append(out, cfg)
		}
	}
	return out
}

// UpdatePerformance pushes fresh success-rate and response-time numbers from
// the aggregator so the next routing decision sees them.
func (r *Registry) UpdatePerformance(tenantID, gateway string, successRate, avgResponseTime float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantKey{tenantID, gateway}
	cfg, ok := r.configs[key]
	if !ok {
		return errors.ErrGatewayNotFound
	}
	cfg.SuccessRate = successRate
	cfg.AvgResponseTime = avgResponseTime
	cfg.UpdatedAt = r.clock.Now()
	r.configs[key] = cfg
	return nil
}

// RecordOutcome folds one submission outcome into the gateway statistics.
func (r *Registry) RecordOutcome(tenantID, gateway string, success bool, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantKey{tenantID, gateway}
	cfg, ok := r.configs[key]
	if !ok {
		return errors.ErrGatewayNotFound
	}
	now := r.clock.Now()
	cfg.Stats.TotalTransactions++
	if success {
		cfg.Stats.SuccessfulCount++
		cfg.Stats.TotalVolume += amount
	} else {
		cfg.Stats.FailedCount++
	}
	cfg.Stats.LastTransactionAt = &now
	cfg.UpdatedAt = now
	r.configs[key] = cfg
	return nil
}

// RecordWebhookFailure increments the gateway's webhook failure counter,
// called when an event exhausts its processing retries.
func (r *Registry) RecordWebhookFailure(tenantID, gateway string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := tenantKey{tenantID, gateway}
	cfg, ok := r.configs[key]
	if !ok {
		return errors.ErrGatewayNotFound
	}
	cfg.Stats.WebhookFailures++
	cfg.UpdatedAt = r.clock.Now()
	r.configs[key] = cfg
	return nil
}

// SetHealth records a health probe result. A change of state emits a
// gateway.health_changed event.
func (r *Registry) SetHealth(tenantID, gateway string, health payment.HealthStatus) error {
	r.mu.Lock()
	key := tenantKey{tenantID, gateway}
	cfg, ok := r.configs[key]
	if !ok {
		r.mu.Unlock()
		return errors.ErrGatewayNotFound
	}
	now := r.clock.Now()
	changed := cfg.Health != health
	cfg.Health = health
	cfg.LastHealthCheck = now
	cfg.UpdatedAt = now
	r.configs[key] = cfg
	r.mu.Unlock()

	if changed {
		r.log.Warn("gateway health changed",
			"tenant", tenantID, "gateway", gateway, "health", string(health))
		r.emitter.Emit(events.Event{
			Type:      events.TypeGatewayHealthChanged,
			TenantID:  tenantID,
			EntityID:  gateway,
			State:     string(health),
			Timestamp: now,
		})
	}
	return nil
}
