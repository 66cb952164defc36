package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/routepay/routepay/pkg/payment"
)

func baseTx() payment.Transaction {
	return payment.Transaction{
		ID:       "txn_1",
		TenantID: "tenant_1",
		Amount:   150000,
		Currency: "INR",
		Method:   payment.MethodCreditCard,
		Metadata: map[string]string{"channel": "web-checkout"},
	}
}

func TestRuleMatchesOperators(t *testing.T) {
	tests := []struct {
		name string
		cond payment.Condition
		want bool
	}{
		{"equals string", payment.Condition{Field: "currency", Operator: payment.OpEquals, Value: "INR"}, true},
		{"equals mismatch", payment.Condition{Field: "currency", Operator: payment.OpEquals, Value: "USD"}, false},
		{"not_equals", payment.Condition{Field: "currency", Operator: payment.OpNotEquals, Value: "USD"}, true},
		{"greater_than amount", payment.Condition{Field: "amount", Operator: payment.OpGreaterThan, Value: 100000}, true},
		{"greater_than not met", payment.Condition{Field: "amount", Operator: payment.OpGreaterThan, Value: 200000}, false},
		{"less_than amount", payment.Condition{Field: "amount", Operator: payment.OpLessThan, Value: 200000}, true},
		{"contains metadata", payment.Condition{Field: "metadata.channel", Operator: payment.OpContains, Value: "checkout"}, true},
		{"in list", payment.Condition{Field: "payment_method", Operator: payment.OpIn, Value: []string{"credit_card", "debit_card"}}, true},
		{"in list any values", payment.Condition{Field: "payment_method", Operator: payment.OpIn, Value: []any{"credit_card", "upi"}}, true},
		{"not_in list", payment.Condition{Field: "payment_method", Operator: payment.OpNotIn, Value: []string{"upi", "wallet"}}, true},
		{"not_in hit", payment.Condition{Field: "payment_method", Operator: payment.OpNotIn, Value: []string{"credit_card"}}, false},
		{"missing field never matches", payment.Condition{Field: "no_such", Operator: payment.OpEquals, Value: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := payment.RoutingRule{Active: true, Conditions: []payment.Condition{tt.cond}}
			assert.Equal(t, tt.want, RuleMatches(rule, baseTx()))
		})
	}
}

func TestRuleMatchesRequiresAllConditions(t *testing.T) {
	rule := payment.RoutingRule{
		Active: true,
		Conditions: []payment.Condition{
			{Field: "amount", Operator: payment.OpGreaterThan, Value: 100000},
			{Field: "currency", Operator: payment.OpEquals, Value: "USD"},
		},
	}
	assert.False(t, RuleMatches(rule, baseTx()))

	rule.Conditions[1].Value = "INR"
	assert.True(t, RuleMatches(rule, baseTx()))
}

func TestRuleMatchesNoConditions(t *testing.T) {
	rule := payment.RoutingRule{Active: true}
	assert.True(t, RuleMatches(rule, baseTx()))
}

func TestNumericComparisonAcrossTypes(t *testing.T) {
	// YAML and JSON decode numbers differently; the comparison must not
	// care whether the rule value arrived as int, int64 or float64.
	for _, v := range []any{100000, int64(100000), float64(100000)} {
		rule := payment.RoutingRule{Active: true, Conditions: []payment.Condition{
			{Field: "amount", Operator: payment.OpGreaterThan, Value: v},
		}}
		assert.True(t, RuleMatches(rule, baseTx()), "value type %T", v)
	}
}
