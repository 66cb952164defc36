// Package lifecycle owns the transaction state machine. It creates
// transactions, gates them through risk assessment, drives routing and
// gateway submission, records the audit trail and handles retries.
//
// State machine:
//
//	PENDING -> BLOCKED                    (risk block, terminal)
//	PENDING -> FAILED                     (no eligible gateway, terminal unless retried)
//	PENDING -> PROCESSING -> SUCCESS      (terminal)
//	PENDING -> PROCESSING -> FAILED       (retryable while retryCount < maxRetries)
//
// Mutation of one transaction is serialized by a per-id lock; transactions
// with different ids proceed fully concurrently. The lock is released for
// the duration of the gateway call, so a webhook for the same transaction
// arriving mid-submission is applied immediately instead of blocking a
// worker; the settle step reacquires the lock and re-reads the record to
// honor such an update.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/routepay/routepay/internal/keylock"
	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/events"
	"github.com/routepay/routepay/pkg/idgen"
	"github.com/routepay/routepay/pkg/metrics"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/registry"
	"github.com/routepay/routepay/pkg/risk"
	"github.com/routepay/routepay/pkg/routing"
	"github.com/routepay/routepay/pkg/storage"
)

// SubmitResult is the outcome contract of a gateway submission.
type SubmitResult struct {
	Success              bool
	GatewayTransactionID string
	RawResponse          string
	ErrorMessage         string
}

// Submitter performs the actual (network) gateway call. The engine depends
// only on this contract, never on a specific gateway's wire format. Tests
// supply deterministic fakes.
type Submitter interface {
	Submit(ctx context.Context, tx payment.Transaction, cfg payment.GatewayConfig) (SubmitResult, error)
}

// Request describes a payment submission from the rest of the platform.
type Request struct {
	TenantID   string
	CustomerID string
	InvoiceID  string
	Amount     int64
	Currency   string
	Method     payment.Method
	Metadata   map[string]string
	MaxRetries int // 0 means DefaultMaxRetries
}

// DefaultMaxRetries bounds automatic gateway retries per transaction.
const DefaultMaxRetries = 3

// Manager drives transactions through their lifecycle.
type Manager struct {
	store      storage.TransactionStore
	registry   *registry.Registry
	assessor   *risk.Assessor
	router     *routing.Engine
	submitter  Submitter
	aggregator *metrics.Aggregator
	emitter    events.Emitter
	ids        idgen.Generator
	clock      clock.Clock
	locks      *keylock.KeyedMutex
	log        *slog.Logger
}

// New wires a Manager from its collaborators.
func New(
	store storage.TransactionStore,
	reg *registry.Registry,
	assessor *risk.Assessor,
	router *routing.Engine,
	submitter Submitter,
	aggregator *metrics.Aggregator,
	emitter events.Emitter,
	ids idgen.Generator,
	clk clock.Clock,
	log *slog.Logger,
) *Manager {
	if emitter == nil {
		emitter = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:      store,
		registry:   reg,
		assessor:   assessor,
		router:     router,
		submitter:  submitter,
		aggregator: aggregator,
		emitter:    emitter,
		ids:        ids,
		clock:      clk,
		locks:      keylock.New(),
		log:        log.With(slog.String("component", "lifecycle-manager")),
	}
}

// Process creates a transaction for the request and drives it to its first
// settled state. A risk block or missing gateway is reported through the
// returned transaction's status, not as an error; errors are reserved for
// malformed requests and infrastructure failures.
func (m *Manager) Process(ctx context.Context, req Request) (payment.Transaction, error) {
	if err := validate(req); err != nil {
		return payment.Transaction{}, err
	}

	now := m.clock.Now()
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	tx := payment.Transaction{
		ID:         m.ids.NewID(idgen.PrefixTransaction),
		TenantID:   req.TenantID,
		CustomerID: req.CustomerID,
		InvoiceID:  req.InvoiceID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     req.Method,
		Status:     payment.StatusPending,
		MaxRetries: maxRetries,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.locks.Lock(tx.ID)

	m.log.Info("processing transaction",
		"transaction", tx.ID, "tenant", tx.TenantID,
		"amount", tx.Amount, "currency", tx.Currency, "method", string(tx.Method))

	// Risk gate. A blocked assessment halts the transaction before any
	// gateway is contacted.
	assessment := m.assessor.Assess(ctx, tx)
	tx.RiskScore = assessment.Score
	tx = tx.WithAudit(m.clock.Now(), payment.AuditRiskAssessed,
		fmt.Sprintf("score=%.1f level=%s", assessment.Score, assessment.Level), "")
	m.emitter.Emit(events.Event{
		Type:      events.TypeRiskAssessmentCompleted,
		TenantID:  tx.TenantID,
		EntityID:  tx.ID,
		State:     string(assessment.Level),
		Timestamp: m.clock.Now(),
	})
	if assessment.Blocked {
		tx.FailureReason = "transaction blocked due to high risk"
		tx = m.settle(ctx, tx, payment.StatusBlocked, tx.FailureReason)
		m.locks.Unlock(tx.ID)
		return tx, nil
	}

	tx, sel, routed, err := m.route(ctx, tx)
	m.locks.Unlock(tx.ID)
	if err != nil || !routed {
		return tx, err
	}
	return m.submitAndSettle(ctx, tx, sel)
}

// Retry re-enters a failed transaction at the routing step. Routing is
// re-evaluated fresh; the previously failed gateway may be reselected when
// it is the only eligible one.
func (m *Manager) Retry(ctx context.Context, id string) (payment.Transaction, error) {
	m.locks.Lock(id)

	tx, err := m.store.Get(ctx, id)
	switch {
	case err != nil:
		m.locks.Unlock(id)
		return payment.Transaction{}, errors.NewError("retry", id, err)
	case tx.Status != payment.StatusFailed:
		m.locks.Unlock(id)
		return tx, errors.NewError("retry", id, errors.ErrNotRetryable)
	case tx.RetryCount >= tx.MaxRetries:
		m.locks.Unlock(id)
		return tx, errors.NewError("retry", id, errors.ErrRetryExhausted)
	}

	tx = tx.WithRetry(m.clock.Now())
	m.log.Info("retrying transaction", "transaction", tx.ID, "retry_count", tx.RetryCount)

	tx, sel, routed, routeErr := m.route(ctx, tx)
	m.locks.Unlock(id)
	if routeErr != nil || !routed {
		return tx, routeErr
	}
	return m.submitAndSettle(ctx, tx, sel)
}

// Get returns the transaction by id.
func (m *Manager) Get(ctx context.Context, id string) (payment.Transaction, error) {
	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return payment.Transaction{}, errors.NewError("get", id, err)
	}
	return tx, nil
}

// ApplyWebhookStatus applies a gateway-reported status to the transaction
// under the per-id lock. The webhook ingestor calls it.
func (m *Manager) ApplyWebhookStatus(ctx context.Context, id string, status payment.Status, eventID string) error {
	m.locks.Lock(id)
	defer m.locks.Unlock(id)

	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if tx.Status == status {
		return nil
	}
	tx = tx.WithStatus(m.clock.Now(), status, "webhook "+eventID)
	tx = tx.WithAudit(m.clock.Now(), payment.AuditWebhookApplied, eventID, "gateway")
	if err := m.store.Save(ctx, tx); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	m.emitStatus(tx)
	return nil
}

// route selects a gateway and moves the transaction to PROCESSING. The
// caller holds the per-id lock. routed is false when the transaction
// settled FAILED because no gateway was eligible.
func (m *Manager) route(ctx context.Context, tx payment.Transaction) (_ payment.Transaction, sel routing.Selection, routed bool, _ error) {
	sel, err := m.router.Select(ctx, tx)
	if err != nil {
		if errors.IsNoEligibleGateway(err) {
			tx.FailureReason = "no suitable gateway available"
			tx = m.settle(ctx, tx, payment.StatusFailed, tx.FailureReason)
			return tx, sel, false, nil
		}
		return tx, sel, false, errors.NewError("route", tx.ID, err)
	}

	tx.Gateway = sel.Gateway.Gateway
	detail := sel.Gateway.Gateway
	if sel.AppliedRule != "" {
		detail += " via rule " + sel.AppliedRule
	}
	tx = tx.WithAudit(m.clock.Now(), payment.AuditGatewaySelect, detail, "")
	tx = tx.WithStatus(m.clock.Now(), payment.StatusProcessing, sel.Gateway.Gateway)
	if err := m.store.Save(ctx, tx); err != nil {
		return tx, sel, false, errors.NewError("save", tx.ID, err)
	}
	m.emitStatus(tx)
	return tx, sel, true, nil
}

// submitAndSettle performs the gateway call without holding the per-id
// lock, then reacquires it to settle. A webhook that settled the
// transaction during the call wins; the submission outcome still feeds the
// performance metrics either way.
func (m *Manager) submitAndSettle(ctx context.Context, tx payment.Transaction, sel routing.Selection) (payment.Transaction, error) {
	started := m.clock.Now()
	result, submitErr := m.submitter.Submit(ctx, tx, sel.Gateway)
	latency := m.clock.Now().Sub(started)

	// An unexpected submitter error still settles the transaction; it must
	// never be left stuck in PROCESSING.
	if submitErr != nil {
		result = SubmitResult{Success: false, ErrorMessage: submitErr.Error()}
	}

	m.locks.Lock(tx.ID)
	defer m.locks.Unlock(tx.ID)

	if current, err := m.store.Get(ctx, tx.ID); err == nil {
		tx = current
	}
	if tx.Status != payment.StatusProcessing {
		m.recordOutcome(ctx, tx, result.Success, latency)
		return tx, nil
	}

	if result.Success {
		tx.GatewayTransactionID = result.GatewayTransactionID
		tx.GatewayResponse = result.RawResponse
		tx = m.settle(ctx, tx, payment.StatusSuccess, result.GatewayTransactionID)
	} else {
		tx.FailureReason = result.ErrorMessage
		tx.GatewayResponse = result.RawResponse
		tx = m.settle(ctx, tx, payment.StatusFailed, result.ErrorMessage)
	}

	m.recordOutcome(ctx, tx, result.Success, latency)
	return tx, nil
}

// settle moves the transaction to a terminal state, persists it and emits
// the status event.
func (m *Manager) settle(ctx context.Context, tx payment.Transaction, status payment.Status, detail string) payment.Transaction {
	tx = tx.WithStatus(m.clock.Now(), status, detail)
	if err := m.store.Save(ctx, tx); err != nil {
		m.log.Error("save transaction failed", "transaction", tx.ID, "error", err)
	}
	m.emitStatus(tx)
	return tx
}

func (m *Manager) recordOutcome(ctx context.Context, tx payment.Transaction, success bool, latency time.Duration) {
	if err := m.registry.RecordOutcome(tx.TenantID, tx.Gateway, success, tx.Amount); err != nil {
		m.log.Warn("gateway stats update failed",
			"transaction", tx.ID, "gateway", tx.Gateway, "error", err)
	}
	if m.aggregator != nil {
		if err := m.aggregator.Record(ctx, tx.TenantID, tx.Gateway, success, latency); err != nil {
			m.log.Warn("metrics update failed",
				"transaction", tx.ID, "gateway", tx.Gateway, "error", err)
		}
	}
}

func (m *Manager) emitStatus(tx payment.Transaction) {
	m.emitter.Emit(events.Event{
		Type:      events.TypeTransactionStatusChanged,
		TenantID:  tx.TenantID,
		EntityID:  tx.ID,
		State:     string(tx.Status),
		Timestamp: tx.UpdatedAt,
	})
}

func validate(req Request) error {
	switch {
	case req.TenantID == "":
		return fmt.Errorf("%w: tenant id is required", errors.ErrValidation)
	case req.CustomerID == "":
		return fmt.Errorf("%w: customer id is required", errors.ErrValidation)
	case req.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", errors.ErrValidation)
	case req.Currency == "":
		return fmt.Errorf("%w: currency is required", errors.ErrValidation)
	case req.Method == "":
		return fmt.Errorf("%w: payment method is required", errors.ErrValidation)
	}
	return nil
}
