package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/routepay/routepay/pkg/payment"
)

// Prober checks one gateway's health out of band from transaction traffic.
type Prober interface {
	Probe(ctx context.Context, cfg payment.GatewayConfig) (payment.HealthStatus, error)
}

// HealthSink receives probe results. The gateway registry implements it.
type HealthSink interface {
	SetHealth(tenantID, gateway string, health payment.HealthStatus) error
}

// GatewayLister supplies the configurations to probe.
type GatewayLister interface {
	All() []payment.GatewayConfig
}

// HealthChecker periodically probes every registered gateway and pushes the
// result to the sink, independent of transaction traffic.
type HealthChecker struct {
	gateways GatewayLister
	prober   Prober
	sink     HealthSink
	interval time.Duration
	log      *slog.Logger
}

// NewHealthChecker creates a checker probing at the given interval.
func NewHealthChecker(gateways GatewayLister, prober Prober, sink HealthSink, interval time.Duration, log *slog.Logger) *HealthChecker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &HealthChecker{
		gateways: gateways,
		prober:   prober,
		sink:     sink,
		interval: interval,
		log:      log.With(slog.String("component", "health-checker")),
	}
}

// Run probes until the context is cancelled. Call it in its own goroutine.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *HealthChecker) sweep(ctx context.Context) {
	for _, cfg := range h.gateways.All() {
		status, err := h.prober.Probe(ctx, cfg)
		if err != nil {
			h.log.Warn("health probe failed",
				"tenant", cfg.TenantID, "gateway", cfg.Gateway, "error", err)
			continue
		}
		if err := h.sink.SetHealth(cfg.TenantID, cfg.Gateway, status); err != nil {
			h.log.Warn("health update failed",
				"tenant", cfg.TenantID, "gateway", cfg.Gateway, "error", err)
		}
	}
}
