package webhook

import (
	"encoding/json"
	"time"

	"github.com/araddon/dateparse"

	"github.com/routepay/routepay/pkg/payment"
)

// envelope covers the field names the supported gateways use in their
// callback payloads.
type envelope struct {
	Event                string `json:"event"`
	Type                 string `json:"type"`
	EventID              string `json:"event_id"`
	ID                   string `json:"id"`
	TransactionID        string `json:"transaction_id"`
	OrderID              string `json:"order_id"`
	Status               string `json:"status"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
	ReferenceID          string `json:"reference_id"`
	Timestamp            string `json:"timestamp"`
	CreatedAt            string `json:"created_at"`
}

// extraction is what the pipeline pulls out of a raw payload.
type extraction struct {
	EventType     string
	CorrelationID string
	TransactionID string
	Status        payment.Status
	HasStatus     bool
	OccurredAt    *time.Time
}

// extract parses the raw payload. Gateways disagree on field names and
// timestamp formats, so alternatives are tried in order and timestamps go
// through a tolerant parser.
func extract(payload []byte) (extraction, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return extraction{}, err
	}

	ex := extraction{
		EventType:     firstNonEmpty(env.Event, env.Type, "unknown"),
		CorrelationID: firstNonEmpty(env.EventID, env.ID),
		TransactionID: firstNonEmpty(env.TransactionID, env.OrderID),
	}
	if env.Status != "" {
		ex.Status = payment.MapGatewayStatus(env.Status)
		ex.HasStatus = true
	}
	if raw := firstNonEmpty(env.Timestamp, env.CreatedAt); raw != "" {
		if t, err := dateparse.ParseAny(raw); err == nil {
			utc := t.UTC()
			ex.OccurredAt = &utc
		}
	}
	return ex, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
