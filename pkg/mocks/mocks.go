// Package mocks provides mock implementations of the engine's interfaces.
// These mocks are designed to be used with github.com/stretchr/testify/mock
// for unit testing code that depends on the engine without standing up
// stores, queues or gateway connections.
//
// # Basic Usage
//
//	func TestCheckout(t *testing.T) {
//	    submitter := new(mocks.MockSubmitter)
//	    submitter.On("Submit", mock.Anything, mock.Anything, mock.Anything).
//	        Return(lifecycle.SubmitResult{Success: true}, nil)
//
//	    // wire submitter into the lifecycle manager under test ...
//
//	    submitter.AssertExpectations(t)
//	}
//
// Use mock.Anything when the argument does not matter and mock.MatchedBy
// for custom argument matching. Always finish with AssertExpectations.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/routepay/routepay/pkg/events"
	"github.com/routepay/routepay/pkg/lifecycle"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/storage"
)

// MockSubmitter is a mock implementation of lifecycle.Submitter.
type MockSubmitter struct {
	mock.Mock
}

// Submit sends a transaction to a gateway.
func (m *MockSubmitter) Submit(ctx context.Context, tx payment.Transaction, gw payment.GatewayConfig) (lifecycle.SubmitResult, error) {
	args := m.Called(ctx, tx, gw)
	return args.Get(0).(lifecycle.SubmitResult), args.Error(1)
}

// MockTransactionStore is a mock implementation of storage.TransactionStore.
type MockTransactionStore struct {
	mock.Mock
}

// Save persists a transaction.
func (m *MockTransactionStore) Save(ctx context.Context, tx payment.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

// Get loads a transaction by id.
func (m *MockTransactionStore) Get(ctx context.Context, id string) (payment.Transaction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payment.Transaction), args.Error(1)
}

// MockWebhookEventStore is a mock implementation of storage.WebhookEventStore.
type MockWebhookEventStore struct {
	mock.Mock
}

// Save persists a webhook event.
func (m *MockWebhookEventStore) Save(ctx context.Context, ev payment.WebhookEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// Get loads a webhook event by id.
func (m *MockWebhookEventStore) Get(ctx context.Context, id string) (payment.WebhookEvent, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payment.WebhookEvent), args.Error(1)
}

// GetByCorrelation loads a webhook event by gateway event id.
func (m *MockWebhookEventStore) GetByCorrelation(ctx context.Context, gateway, correlationID string) (payment.WebhookEvent, error) {
	args := m.Called(ctx, gateway, correlationID)
	return args.Get(0).(payment.WebhookEvent), args.Error(1)
}

// MockMetricsStore is a mock implementation of storage.MetricsStore.
type MockMetricsStore struct {
	mock.Mock
}

// Get loads one metrics bucket.
func (m *MockMetricsStore) Get(ctx context.Context, key storage.MetricsKey) (payment.PerformanceMetrics, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(payment.PerformanceMetrics), args.Error(1)
}

// Save persists one metrics bucket.
func (m *MockMetricsStore) Save(ctx context.Context, key storage.MetricsKey, pm payment.PerformanceMetrics) error {
	args := m.Called(ctx, key, pm)
	return args.Error(0)
}

// MockRuleStore is a mock implementation of storage.RuleStore.
type MockRuleStore struct {
	mock.Mock
}

// ListByTenant returns the tenant's routing rules.
func (m *MockRuleStore) ListByTenant(ctx context.Context, tenantID string) ([]payment.RoutingRule, error) {
	args := m.Called(ctx, tenantID)
	if rules := args.Get(0); rules != nil {
		return rules.([]payment.RoutingRule), args.Error(1)
	}
	return nil, args.Error(1)
}

// Save persists a routing rule.
func (m *MockRuleStore) Save(ctx context.Context, rule payment.RoutingRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

// MockEmitter is a mock implementation of events.Emitter.
type MockEmitter struct {
	mock.Mock
}

// Emit publishes a domain event.
func (m *MockEmitter) Emit(ev events.Event) {
	m.Called(ev)
}

// MockVerifier is a mock implementation of webhook.Verifier.
type MockVerifier struct {
	mock.Mock
}

// Verify checks a payload signature.
func (m *MockVerifier) Verify(payload []byte, signature, secret string) bool {
	args := m.Called(payload, signature, secret)
	return args.Bool(0)
}

// MockQueue is a mock implementation of webhook.Queue.
type MockQueue struct {
	mock.Mock
}

// Enqueue appends an event id.
func (m *MockQueue) Enqueue(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// Dequeue blocks for the next event id.
func (m *MockQueue) Dequeue(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// Ack marks an event id consumed.
func (m *MockQueue) Ack(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// Close stops the queue.
func (m *MockQueue) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockStatusApplier is a mock implementation of webhook.StatusApplier.
type MockStatusApplier struct {
	mock.Mock
}

// ApplyWebhookStatus applies a gateway-reported status to a transaction.
func (m *MockStatusApplier) ApplyWebhookStatus(ctx context.Context, txID string, status payment.Status, eventID string) error {
	args := m.Called(ctx, txID, status, eventID)
	return args.Error(0)
}

// MockArchiver is a mock implementation of webhook.Archiver.
type MockArchiver struct {
	mock.Mock
}

// Archive retains a processed event's payload.
func (m *MockArchiver) Archive(ctx context.Context, ev payment.WebhookEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// MockProber is a mock implementation of metrics.Prober.
type MockProber struct {
	mock.Mock
}

// Probe checks one gateway's health.
func (m *MockProber) Probe(ctx context.Context, cfg payment.GatewayConfig) (payment.HealthStatus, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(payment.HealthStatus), args.Error(1)
}

// MockCustomerHistory is a mock implementation of risk.CustomerHistoryProvider.
type MockCustomerHistory struct {
	mock.Mock
}

// Score returns a risk score for the customer's payment history.
func (m *MockCustomerHistory) Score(ctx context.Context, tenantID, customerID string) (float64, error) {
	args := m.Called(ctx, tenantID, customerID)
	return args.Get(0).(float64), args.Error(1)
}

// MockOutcomeRecorder is a mock implementation of webhook.OutcomeRecorder.
type MockOutcomeRecorder struct {
	mock.Mock
}

// Record folds one confirmed outcome into the metrics.
func (m *MockOutcomeRecorder) Record(ctx context.Context, tenantID, gateway string, success bool, responseTime time.Duration) error {
	args := m.Called(ctx, tenantID, gateway, success, responseTime)
	return args.Error(0)
}
