// Package events is the engine's outbound event surface. Other platform
// modules (invoicing, notifications) subscribe to transaction status
// changes, risk outcomes and gateway health transitions.
package events

import (
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	TypeTransactionStatusChanged = "transaction.status_changed"
	TypeRiskAssessmentCompleted  = "risk.assessment_completed"
	TypeGatewayHealthChanged     = "gateway.health_changed"
)

// Event is one engine notification.
type Event struct {
	Type      string    `json:"type"`
	TenantID  string    `json:"tenant_id"`
	EntityID  string    `json:"entity_id"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Emitter publishes engine events. Implementations must be safe for
// concurrent use; emission is fire-and-forget from the engine's view.
type Emitter interface {
	Emit(ev Event)
}

// Nop discards all events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}

// Bus is an in-process fan-out Emitter. Handlers run synchronously in
// subscription order; a slow handler slows emission, so handlers that do
// real work should hand off to their own goroutines.
type Bus struct {
	mu       sync.RWMutex
	handlers []func(Event)
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

// Emit implements Emitter.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(ev)
	}
}
