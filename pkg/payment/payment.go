// Package payment defines the domain types shared by the routing engine:
// transactions, gateway configurations, routing rules, risk assessments,
// performance metrics and webhook events.
//
// Types here are treated as value records. State changes go through the
// transition helpers (WithStatus, WithRetry, ...) which return a modified
// copy, so stores and callers never share mutable state.
package payment

import (
	"time"
)

// Method identifies how the customer pays.
type Method string

// Supported payment methods
const (
	MethodCreditCard Method = "credit_card"
	MethodDebitCard  Method = "debit_card"
	MethodUPI        Method = "upi"
	MethodNetBanking Method = "net_banking"
	MethodWallet     Method = "wallet"
	MethodEMI        Method = "emi"
	MethodBNPL       Method = "bnpl"
)

// Status is the transaction status vocabulary.
type Status string

// Transaction statuses. SUCCESS, FAILED and BLOCKED are terminal;
// FAILED remains retryable while the retry budget lasts.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// IsTerminal reports whether the status ends the transaction lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusBlocked, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// AuditEntry is one append-only record on a transaction's audit trail.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Actor     string    `json:"actor,omitempty"`
}

// Audit actions recorded by the lifecycle manager.
const (
	AuditStatusUpdate   = "STATUS_UPDATE"
	AuditRetryAttempt   = "RETRY_ATTEMPT"
	AuditRiskAssessed   = "RISK_ASSESSED"
	AuditGatewaySelect  = "GATEWAY_SELECTED"
	AuditWebhookApplied = "WEBHOOK_APPLIED"
)

// Transaction is a payment attempt owned by the lifecycle manager.
// Amounts are in minor currency units (paise, cents).
type Transaction struct {
	ID                   string            `json:"id"`
	TenantID             string            `json:"tenant_id"`
	CustomerID           string            `json:"customer_id"`
	InvoiceID            string            `json:"invoice_id"`
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	Method               Method            `json:"payment_method"`
	Gateway              string            `json:"gateway,omitempty"`
	Status               Status            `json:"status"`
	GatewayTransactionID string            `json:"gateway_transaction_id,omitempty"`
	GatewayResponse      string            `json:"gateway_response,omitempty"`
	FailureReason        string            `json:"failure_reason,omitempty"`
	RetryCount           int               `json:"retry_count"`
	MaxRetries           int               `json:"max_retries"`
	RiskScore            float64           `json:"risk_score"`
	ComplianceFlags      []string          `json:"compliance_flags,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	AuditTrail           []AuditEntry      `json:"audit_trail"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
}

// WithAudit returns a copy with an audit entry appended and UpdatedAt bumped.
func (t Transaction) WithAudit(now time.Time, action, detail, actor string) Transaction {
	trail := make([]AuditEntry, len(t.AuditTrail), len(t.AuditTrail)+1)
	copy(trail, t.AuditTrail)
	t.AuditTrail = append(trail, AuditEntry{
		Timestamp: now,
		Action:    action,
		Detail:    detail,
		Actor:     actor,
	})
	t.UpdatedAt = now
	return t
}

// WithStatus returns a copy transitioned to the given status. CompletedAt is
// set exactly when the status is terminal, and an audit entry is appended.
func (t Transaction) WithStatus(now time.Time, status Status, detail string) Transaction {
	t.Status = status
	if status.IsTerminal() {
		done := now
		t.CompletedAt = &done
	}
	return t.WithAudit(now, AuditStatusUpdate, string(status)+": "+detail, "")
}

// WithRetry returns a copy with the retry counter incremented and the
// attempt recorded. The caller must check CanRetry first.
func (t Transaction) WithRetry(now time.Time) Transaction {
	t.RetryCount++
	t.CompletedAt = nil
	return t.WithAudit(now, AuditRetryAttempt, "", "")
}

// CanRetry reports whether the transaction may re-enter routing.
func (t Transaction) CanRetry() bool {
	return t.Status == StatusFailed && t.RetryCount < t.MaxRetries
}

// IsCompleted reports whether the transaction reached a terminal status.
func (t Transaction) IsCompleted() bool {
	return t.Status.IsTerminal()
}

// Duration returns the time from creation to completion, or zero if the
// transaction is still open.
func (t Transaction) Duration() time.Duration {
	if t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(t.CreatedAt)
}

// Field returns a transaction field by name for routing-rule evaluation.
// Dotted paths address metadata, e.g. "metadata.channel".
func (t Transaction) Field(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID, true
	case "tenantId", "tenant_id":
		return t.TenantID, true
	case "customerId", "customer_id":
		return t.CustomerID, true
	case "invoiceId", "invoice_id":
		return t.InvoiceID, true
	case "amount":
		return t.Amount, true
	case "currency":
		return t.Currency, true
	case "paymentMethod", "payment_method":
		return string(t.Method), true
	case "gateway":
		return t.Gateway, true
	case "status":
		return string(t.Status), true
	case "riskScore", "risk_score":
		return t.RiskScore, true
	case "retryCount", "retry_count":
		return t.RetryCount, true
	}
	const metaPrefix = "metadata."
	if len(name) > len(metaPrefix) && name[:len(metaPrefix)] == metaPrefix {
		v, ok := t.Metadata[name[len(metaPrefix):]]
		return v, ok
	}
	return nil, false
}
