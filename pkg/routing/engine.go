// Package routing selects the gateway that should carry a transaction.
// Selection is deterministic given identical registry and metrics snapshots:
// eligible gateways rank by success rate descending, then processing fee
// ascending, then gateway id; the highest-priority matching tenant rule may
// narrow the candidates to its preferred gateways first.
package routing

import (
	"context"
	"log/slog"
	"sort"

	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/storage"
)

// GatewaySource supplies the candidate gateway configurations for a tenant.
// The registry implements it.
type GatewaySource interface {
	ListByTenant(tenantID string) []payment.GatewayConfig
}

// Selection is the routing outcome for one transaction.
type Selection struct {
	Gateway     payment.GatewayConfig
	AppliedRule string // rule id when a routing rule narrowed the choice
}

// Engine evaluates eligibility, ranking and tenant rules.
type Engine struct {
	gateways GatewaySource
	rules    storage.RuleStore
	log      *slog.Logger
}

// New creates a routing engine. rules may be nil when no rule store is
// configured; selection then falls back to pure ranking.
func New(gateways GatewaySource, rules storage.RuleStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		gateways: gateways,
		rules:    rules,
		log:      log.With(slog.String("component", "routing-engine")),
	}
}

// Select returns the gateway that should process the transaction, or
// ErrNoEligibleGateway when the eligibility filter leaves nothing. Each call
// re-reads the registry snapshot, so retries re-rank with fresh metrics.
func (e *Engine) Select(ctx context.Context, tx payment.Transaction) (Selection, error) {
	candidates := e.eligible(tx)
	if len(candidates) == 0 {
		e.log.Warn("no eligible gateways",
			"transaction", tx.ID, "amount", tx.Amount,
			"currency", tx.Currency, "method", string(tx.Method))
		return Selection{}, errors.ErrNoEligibleGateway
	}

	rank(candidates, tx.Amount)

	sel := Selection{Gateway: candidates[0]}
	if rule, ok := e.matchRule(ctx, tx); ok {
		if preferred := narrow(candidates, rule.Action.PreferredGateways); len(preferred) > 0 {
			sel = Selection{Gateway: preferred[0], AppliedRule: rule.ID}
		} else if fallback := narrow(candidates, rule.Action.FallbackGateways); len(fallback) > 0 {
			sel = Selection{Gateway: fallback[0], AppliedRule: rule.ID}
		}
	}

	e.log.Info("gateway selected",
		"transaction", tx.ID,
		"gateway", sel.Gateway.Gateway,
		"success_rate", sel.Gateway.SuccessRate,
		"fee_rate", sel.Gateway.FeeRate,
		"rule", sel.AppliedRule)
	return sel, nil
}

// eligible filters the tenant's gateways to those that can carry the
// transaction: active, not unhealthy, within amount bounds, supporting the
// currency and method.
func (e *Engine) eligible(tx payment.Transaction) []payment.GatewayConfig {
	var out []payment.GatewayConfig
	for _, cfg := range e.gateways.ListByTenant(tx.TenantID) {
		if cfg.Eligible(tx.Amount, tx.Currency, tx.Method) {
			out = append(out, cfg)
		}
	}
	return out
}

// rank orders candidates by success rate descending, effective fee
// ascending, then gateway id for a stable deterministic order.
func rank(candidates []payment.GatewayConfig, amount int64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		fa, fb := a.EffectiveFee(amount), b.EffectiveFee(amount)
		if fa != fb {
			return fa < fb
		}
		return a.Gateway < b.Gateway
	})
}

// matchRule returns the highest-priority active rule whose conditions all
// hold for the transaction.
func (e *Engine) matchRule(ctx context.Context, tx payment.Transaction) (payment.RoutingRule, bool) {
	if e.rules == nil {
		return payment.RoutingRule{}, false
	}
	rules, err := e.rules.ListByTenant(ctx, tx.TenantID)
	if err != nil {
		e.log.Error("routing rules unavailable", "tenant", tx.TenantID, "error", err)
		return payment.RoutingRule{}, false
	}
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if RuleMatches(rule, tx) {
			return rule, true
		}
	}
	return payment.RoutingRule{}, false
}

// narrow keeps the ranked candidates whose gateway is in the preference
// list, preserving rank order.
func narrow(ranked []payment.GatewayConfig, preferred []string) []payment.GatewayConfig {
	if len(preferred) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(preferred))
	for _, g := range preferred {
		set[g] = struct{}{}
	}
	var out []payment.GatewayConfig
	for _, cfg := range ranked {
		if _, ok := set[cfg.Gateway]; ok {
			out = append(out, cfg)
		}
	}
	return out
}
