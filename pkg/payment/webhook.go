package payment

import (
	"strings"
	"time"
)

// EventStatus is the webhook-event processing status vocabulary.
type EventStatus string

// Webhook event processing states. Completed and failed are terminal;
// events are retained after terminal states for audit.
const (
	EventPending    EventStatus = "pending"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
	EventRetrying   EventStatus = "retrying"
)

// DefaultMaxAttempts bounds webhook processing retries.
const DefaultMaxAttempts = 3

// WebhookEvent is an asynchronous gateway callback tracked through the
// ingestion pipeline.
type WebhookEvent struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	Gateway       string            `json:"gateway"`
	EventType     string            `json:"event_type"`
	CorrelationID string            `json:"correlation_id"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Payload       []byte            `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	Signature     string            `json:"signature,omitempty"`
	Verified      bool              `json:"verified"`
	Processed     bool              `json:"processed"`
	Status        EventStatus       `json:"status"`
	Attempts      int               `json:"attempts"`
	MaxAttempts   int               `json:"max_attempts"`
	NextRetryAt   *time.Time        `json:"next_retry_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	ReceivedAt    time.Time         `json:"received_at"`
	OccurredAt    *time.Time        `json:"occurred_at,omitempty"`
	ProcessedAt   *time.Time        `json:"processed_at,omitempty"`
}

// CanRetry reports whether the event has retry budget left.
func (e WebhookEvent) CanRetry() bool {
	return e.Attempts < e.MaxAttempts
}

// WithVerified returns a copy marked as signature-verified.
func (e WebhookEvent) WithVerified() WebhookEvent {
	e.Verified = true
	return e
}

// WithProcessingStarted returns a copy with an attempt consumed.
func (e WebhookEvent) WithProcessingStarted() WebhookEvent {
	e.Status = EventProcessing
	e.Attempts++
	return e
}

// WithCompleted returns a copy in the terminal completed state.
func (e WebhookEvent) WithCompleted(now time.Time) WebhookEvent {
	e.Status = EventCompleted
	e.Processed = true
	done := now
	e.ProcessedAt = &done
	e.NextRetryAt = nil
	return e
}

// WithFailure records a processing error. While attempts remain the event
// moves to retrying with nextRetryAt = now + 2^attempts minutes; once the
// budget is exhausted it fails terminally.
func (e WebhookEvent) WithFailure(now time.Time, errMsg string) WebhookEvent {
	e.LastError = errMsg
	if e.CanRetry() {
		e.Status = EventRetrying
		next := now.Add(BackoffDelay(e.Attempts))
		e.NextRetryAt = &next
	} else {
		e.Status = EventFailed
		e.NextRetryAt = nil
	}
	return e
}

// BackoffDelay returns the exponential delay before the next processing
// attempt: 2^attempts minutes.
func BackoffDelay(attempts int) time.Duration {
	return time.Duration(1<<uint(attempts)) * time.Minute
}

// gatewayStatusMap translates the vocabulary gateways use in webhook
// payloads to transaction statuses.
var gatewayStatusMap = map[string]Status{
	"success":    StatusSuccess,
	"completed":  StatusSuccess,
	"paid":       StatusSuccess,
	"captured":   StatusSuccess,
	"failed":     StatusFailed,
	"error":      StatusFailed,
	"cancelled":  StatusCancelled,
	"pending":    StatusPending,
	"processing": StatusProcessing,
	"refunded":   StatusRefunded,
}

// MapGatewayStatus translates a gateway-specific status string. Unknown
// values map to pending, mirroring how gateways report in-flight states.
func MapGatewayStatus(s string) Status {
	if mapped, ok := gatewayStatusMap[strings.ToLower(s)]; ok {
		return mapped
	}
	return StatusPending
}
