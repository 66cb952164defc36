// Package memory provides in-memory implementations of the storage
// interfaces. They are the default for tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/storage"
)

// TransactionStore is a mutex-guarded map of transactions.
type TransactionStore struct {
	mu  sync.RWMutex
	txs map[string]payment.Transaction
}

// NewTransactionStore creates an empty store.
func NewTransactionStore() *TransactionStore {
	return &TransactionStore{txs: make(map[string]payment.Transaction)}
}

// Save implements storage.TransactionStore.
func (s *TransactionStore) Save(_ context.Context, tx payment.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.ID] = tx
	return nil
}

// Get implements storage.TransactionStore.
func (s *TransactionStore) Get(_ context.Context, id string) (payment.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return payment.Transaction{}, errors.ErrTransactionNotFound
	}
	return tx, nil
}

// WebhookEventStore is a mutex-guarded map of webhook events with a
// (gateway, correlation id) index for idempotency lookups.
type WebhookEventStore struct {
	mu     sync.RWMutex
	events map[string]payment.WebhookEvent
	byCorr map[corrKey]string
}

type corrKey struct {
	gateway       string
	correlationID string
}

// NewWebhookEventStore creates an empty store.
func NewWebhookEventStore() *WebhookEventStore {
	return &WebhookEventStore{
		events: make(map[string]payment.WebhookEvent),
		byCorr: make(map[corrKey]string),
	}
}

// Save implements storage.WebhookEventStore.
func (s *WebhookEventStore) Save(_ context.Context, ev payment.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	if ev.CorrelationID != "" {
		s.byCorr[corrKey{ev.Gateway, ev.CorrelationID}] = ev.ID
	}
	return nil
}

// Get implements storage.WebhookEventStore.
func (s *WebhookEventStore) Get(_ context.Context, id string) (payment.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return payment.WebhookEvent{}, errors.ErrEventNotFound
	}
	return ev, nil
}

// GetByCorrelation implements storage.WebhookEventStore.
func (s *WebhookEventStore) GetByCorrelation(_ context.Context, gateway, correlationID string) (payment.WebhookEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCorr[corrKey{gateway, correlationID}]
	if !ok {
		return payment.WebhookEvent{}, errors.ErrEventNotFound
	}
	return s.events[id], nil
}

// MetricsStore is a mutex-guarded map keyed by the structured MetricsKey.
type MetricsStore struct {
	mu      sync.RWMutex
	buckets map[storage.MetricsKey]payment.PerformanceMetrics
}

// NewMetricsStore creates an empty store.
func NewMetricsStore() *MetricsStore {
	return &MetricsStore{buckets: make(map[storage.MetricsKey]payment.PerformanceMetrics)}
}

// Get implements storage.MetricsStore. A missing bucket returns a zero
// record for the key rather than an error: buckets are created lazily.
func (s *MetricsStore) Get(_ context.Context, key storage.MetricsKey) (payment.PerformanceMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.buckets[key]; ok {
		return m, nil
	}
	return payment.PerformanceMetrics{
		TenantID:    key.TenantID,
		Gateway:     key.Gateway,
		BucketStart: key.BucketStart,
		BucketEnd:   key.BucketStart.Add(time.Hour),
	}, nil
}

// Save implements storage.MetricsStore.
func (s *MetricsStore) Save(_ context.Context, key storage.MetricsKey, m payment.PerformanceMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[key] = m
	return nil
}

// RuleStore keeps routing rules per tenant.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string][]payment.RoutingRule
}

// NewRuleStore creates an empty store.
func NewRuleStore() *RuleStore {
	return &RuleStore{rules: make(map[string][]payment.RoutingRule)}
}

// Save implements storage.RuleStore, replacing any rule with the same id.
func (s *RuleStore) Save(_ context.Context, rule payment.RoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.rules[rule.TenantID]
	replaced := false
	for i, r := range list {
		if r.ID == rule.ID {
			list[i] = rule
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, rule)
	}
	s.rules[rule.TenantID] = list
	return nil
}

// ListByTenant implements storage.RuleStore. Rules come back in descending
// priority order, ready for first-match evaluation.
func (s *RuleStore) ListByTenant(_ context.Context, tenantID string) ([]payment.RoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.rules[tenantID]
	out := make([]payment.RoutingRule, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}
