package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/storage/memory"
)

type staticGateways []payment.GatewayConfig

func (s staticGateways) ListByTenant(string) []payment.GatewayConfig {
	out := make([]payment.GatewayConfig, len(s))
	copy(out, s)
	return out
}

func gatewayFixture(name string, successRate, feeRate float64) payment.GatewayConfig {
	return payment.GatewayConfig{
		ID:                  "gw_" + name,
		TenantID:            "tenant_1",
		Gateway:             name,
		Active:              true,
		Health:              payment.HealthHealthy,
		MinAmount:           0,
		MaxAmount:           1_000_000,
		SupportedCurrencies: []string{"INR", "USD"},
		SupportedMethods:    []payment.Method{payment.MethodCreditCard, payment.MethodUPI},
		SuccessRate:         successRate,
		FeeRate:             feeRate,
	}
}

func routingTx() payment.Transaction {
	return payment.Transaction{
		ID:       "txn_1",
		TenantID: "tenant_1",
		Amount:   150000,
		Currency: "INR",
		Method:   payment.MethodCreditCard,
	}
}

func TestSelectRanksBySuccessRateThenFee(t *testing.T) {
	gws := staticGateways{
		gatewayFixture("gateway_a", 92.0, 2.0),
		gatewayFixture("gateway_b", 97.0, 2.5),
		gatewayFixture("gateway_c", 97.0, 1.8),
	}
	eng := New(gws, nil, nil)

	sel, err := eng.Select(context.Background(), routingTx())

	require.NoError(t, err)
	// Both b and c run at 97%; c wins on the cheaper fee.
	assert.Equal(t, "gateway_c", sel.Gateway.Gateway)
	assert.Empty(t, sel.AppliedRule)
}

func TestSelectIsDeterministic(t *testing.T) {
	gws := staticGateways{
		gatewayFixture("gateway_a", 95.0, 2.0),
		gatewayFixture("gateway_b", 95.0, 2.0),
	}
	eng := New(gws, nil, nil)

	for i := 0; i < 10; i++ {
		sel, err := eng.Select(context.Background(), routingTx())
		require.NoError(t, err)
		// Identical metrics and fees: the gateway id breaks the tie, always
		// the same way.
		assert.Equal(t, "gateway_a", sel.Gateway.Gateway)
	}
}

func TestSelectFiltersIneligible(t *testing.T) {
	inactive := gatewayFixture("gateway_a", 99.0, 1.0)
	inactive.Active = false
	unhealthy := gatewayFixture("gateway_b", 99.0, 1.0)
	unhealthy.Health = payment.HealthUnhealthy
	tooSmall := gatewayFixture("gateway_c", 99.0, 1.0)
	tooSmall.MaxAmount = 1000
	noMethod := gatewayFixture("gateway_d", 99.0, 1.0)
	noMethod.SupportedMethods = []payment.Method{payment.MethodUPI}
	ok := gatewayFixture("gateway_e", 50.0, 3.0)

	eng := New(staticGateways{inactive, unhealthy, tooSmall, noMethod, ok}, nil, nil)

	sel, err := eng.Select(context.Background(), routingTx())
	require.NoError(t, err)
	assert.Equal(t, "gateway_e", sel.Gateway.Gateway)
}

func TestSelectNoEligibleGateway(t *testing.T) {
	gw := gatewayFixture("gateway_a", 99.0, 1.0)
	gw.SupportedCurrencies = []string{"EUR"}
	eng := New(staticGateways{gw}, nil, nil)

	_, err := eng.Select(context.Background(), routingTx())
	assert.ErrorIs(t, err, errors.ErrNoEligibleGateway)
}

func TestSelectAppliesHighestPriorityRule(t *testing.T) {
	gws := staticGateways{
		gatewayFixture("gateway_a", 97.0, 1.8),
		gatewayFixture("gateway_b", 90.0, 2.5),
	}
	rules := memory.NewRuleStore()
	ctx := context.Background()
	require.NoError(t, rules.Save(ctx, payment.RoutingRule{
		ID: "rule_low", TenantID: "tenant_1", Active: true, Priority: 1,
		Conditions: []payment.Condition{{Field: "amount", Operator: payment.OpGreaterThan, Value: 1}},
		Action:     payment.RuleAction{PreferredGateways: []string{"gateway_a"}},
	}))
	require.NoError(t, rules.Save(ctx, payment.RoutingRule{
		ID: "rule_high", TenantID: "tenant_1", Active: true, Priority: 10,
		Conditions: []payment.Condition{{Field: "amount", Operator: payment.OpGreaterThan, Value: 100000}},
		Action:     payment.RuleAction{PreferredGateways: []string{"gateway_b"}},
	}))

	eng := New(gws, rules, nil)
	sel, err := eng.Select(ctx, routingTx())

	require.NoError(t, err)
	// The priority-10 rule overrides pure ranking even though gateway_a
	// scores better.
	assert.Equal(t, "gateway_b", sel.Gateway.Gateway)
	assert.Equal(t, "rule_high", sel.AppliedRule)
}

func TestSelectRuleFallbackWhenPreferredIneligible(t *testing.T) {
	gws := staticGateways{
		gatewayFixture("gateway_a", 97.0, 1.8),
		gatewayFixture("gateway_b", 90.0, 2.5),
	}
	rules := memory.NewRuleStore()
	ctx := context.Background()
	require.NoError(t, rules.Save(ctx, payment.RoutingRule{
		ID: "rule_1", TenantID: "tenant_1", Active: true, Priority: 5,
		Action: payment.RuleAction{
			PreferredGateways: []string{"gateway_offline"},
			FallbackGateways:  []string{"gateway_b"},
		},
	}))

	eng := New(gws, rules, nil)
	sel, err := eng.Select(ctx, routingTx())

	require.NoError(t, err)
	assert.Equal(t, "gateway_b", sel.Gateway.Gateway)
	assert.Equal(t, "rule_1", sel.AppliedRule)
}

func TestSelectInactiveRuleIgnored(t *testing.T) {
	gws := staticGateways{
		gatewayFixture("gateway_a", 97.0, 1.8),
		gatewayFixture("gateway_b", 90.0, 2.5),
	}
	rules := memory.NewRuleStore()
	ctx := context.Background()
	require.NoError(t, rules.Save(ctx, payment.RoutingRule{
		ID: "rule_1", TenantID: "tenant_1", Active: false, Priority: 5,
		Action: payment.RuleAction{PreferredGateways: []string{"gateway_b"}},
	}))

	eng := New(gws, rules, nil)
	sel, err := eng.Select(ctx, routingTx())

	require.NoError(t, err)
	assert.Equal(t, "gateway_a", sel.Gateway.Gateway)
	assert.Empty(t, sel.AppliedRule)
}
