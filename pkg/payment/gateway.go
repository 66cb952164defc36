package payment

import "time"

// HealthStatus is the gateway health vocabulary.
type HealthStatus string

// Gateway health states. Unhealthy gateways are excluded from routing;
// degraded gateways stay eligible but rank by their live metrics.
const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// GatewayStats accumulates per-gateway traffic counters.
type GatewayStats struct {
	TotalTransactions  int64      `json:"total_transactions"`
	SuccessfulCount    int64      `json:"successful_count"`
	FailedCount        int64      `json:"failed_count"`
	WebhookFailures    int64      `json:"webhook_failures"`
	TotalVolume        int64      `json:"total_volume"`
	LastTransactionAt  *time.Time `json:"last_transaction_at,omitempty"`
}

// GatewayConfig describes one tenant's configuration of a payment gateway,
// including the live health and performance snapshot that routing reads.
type GatewayConfig struct {
	ID                  string       `json:"id"`
	TenantID            string       `json:"tenant_id"`
	Gateway             string       `json:"gateway"`
	Active              bool         `json:"active"`
	Priority            int          `json:"priority"`
	SupportedMethods    []Method     `json:"supported_methods"`
	SupportedCurrencies []string     `json:"supported_currencies"`
	MinAmount           int64        `json:"min_amount"`
	MaxAmount           int64        `json:"max_amount"`
	FeeRate             float64      `json:"fee_rate"` // percentage
	SuccessRate         float64      `json:"success_rate"`
	AvgResponseTime     float64      `json:"avg_response_time"` // milliseconds
	Health              HealthStatus `json:"health_status"`
	LastHealthCheck     time.Time    `json:"last_health_check"`
	WebhookSecret       string       `json:"-"`
	Stats               GatewayStats `json:"stats"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Eligible reports whether this gateway can carry the transaction:
// active, not unhealthy, amount within bounds, currency and method supported.
func (g GatewayConfig) Eligible(amount int64, currency string, method Method) bool {
	if !g.Active || g.Health == HealthUnhealthy {
		return false
	}
	if amount < g.MinAmount || amount > g.MaxAmount {
		return false
	}
	if !containsString(g.SupportedCurrencies, currency) {
		return false
	}
	return containsMethod(g.SupportedMethods, method)
}

// EffectiveFee returns the processing fee for the given amount in minor units.
func (g GatewayConfig) EffectiveFee(amount int64) float64 {
	return float64(amount) * g.FeeRate / 100
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsMethod(list []Method, v Method) bool {
	for _, m := range list {
		if m == v {
			return true
		}
	}
	return false
}
