package payment

import "time"

// Operator compares a transaction field against a rule condition value.
type Operator string

// Condition operators supported by routing rules.
const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Condition is one field/operator/value predicate on a routing rule.
// Value holds a scalar for the comparison operators and a []string for
// in/not_in.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// RuleAction is what a matching rule applies to the candidate set.
type RuleAction struct {
	PreferredGateways []string `json:"preferred_gateways,omitempty" yaml:"preferred_gateways,omitempty"`
	FallbackGateways  []string `json:"fallback_gateways,omitempty" yaml:"fallback_gateways,omitempty"`
	FeeOverride       *float64 `json:"fee_override,omitempty" yaml:"fee_override,omitempty"`
	MaxRetryOverride  *int     `json:"max_retry_override,omitempty" yaml:"max_retry_override,omitempty"`
}

// RoutingRule is a tenant-scoped ordered predicate evaluated by the routing
// engine. Rules are edited by configuration owners and never mutated here.
type RoutingRule struct {
	ID         string      `json:"id" yaml:"id"`
	TenantID   string      `json:"tenant_id" yaml:"tenant_id"`
	Name       string      `json:"name" yaml:"name"`
	Active     bool        `json:"active" yaml:"active"`
	Priority   int         `json:"priority" yaml:"priority"`
	Conditions []Condition `json:"conditions" yaml:"conditions"`
	Action     RuleAction  `json:"action" yaml:"action"`
	CreatedAt  time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time   `json:"updated_at" yaml:"-"`
}
