package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/events"
	"github.com/routepay/routepay/pkg/idgen"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/registry"
	"github.com/routepay/routepay/pkg/risk"
	"github.com/routepay/routepay/pkg/routing"
	"github.com/routepay/routepay/pkg/storage/memory"
)

// scriptSubmitter plays back a fixed sequence of outcomes; the last entry
// repeats once the script runs out.
type scriptSubmitter struct {
	script []func() (SubmitResult, error)
	calls  int
}

func (s *scriptSubmitter) Submit(context.Context, payment.Transaction, payment.GatewayConfig) (SubmitResult, error) {
	i := s.calls
	s.calls++
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	return s.script[i]()
}

func succeedWith(gatewayTxID string) func() (SubmitResult, error) {
	return func() (SubmitResult, error) {
		return SubmitResult{Success: true, GatewayTransactionID: gatewayTxID, RawResponse: `{"status":"captured"}`}, nil
	}
}

func failWith(msg string) func() (SubmitResult, error) {
	return func() (SubmitResult, error) {
		return SubmitResult{Success: false, ErrorMessage: msg}, nil
	}
}

type fixedHistory float64

func (f fixedHistory) Score(context.Context, string, string) (float64, error) {
	return float64(f), nil
}

type harness struct {
	manager  *Manager
	registry *registry.Registry
	store    *memory.TransactionStore
	clock    *clock.Fixed
	events   *[]events.Event
}

func newHarness(t *testing.T, submitter Submitter, history risk.CustomerHistoryProvider) harness {
	t.Helper()
	clk := &clock.Fixed{T: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	ids := &idgen.Sequence{}
	bus := events.NewBus()
	var emitted []events.Event
	bus.Subscribe(func(ev events.Event) { emitted = append(emitted, ev) })

	reg := registry.New(ids, clk, bus, nil)
	store := memory.NewTransactionStore()
	assessor := risk.New(risk.DefaultConfig(), ids, clk, history, nil)
	router := routing.New(reg, memory.NewRuleStore(), nil)
	m := New(store, reg, assessor, router, submitter, nil, bus, ids, clk, nil)
	return harness{manager: m, registry: reg, store: store, clock: clk, events: &emitted}
}

func (h harness) addGateway(gateway string) {
	h.registry.Upsert(payment.GatewayConfig{
		TenantID:            "tenant_1",
		Gateway:             gateway,
		Active:              true,
		SupportedCurrencies: []string{"INR"},
		SupportedMethods: []payment.Method{
			payment.MethodUPI, payment.MethodCreditCard, payment.MethodBNPL,
		},
		SuccessRate: 95,
		FeeRate:     2,
	})
}

func request() Request {
	return Request{
		TenantID:   "tenant_1",
		CustomerID: "cust_1",
		InvoiceID:  "inv_1",
		Amount:     50_000,
		Currency:   "INR",
		Method:     payment.MethodUPI,
	}
}

func auditActions(tx payment.Transaction) []string {
	out := make([]string, len(tx.AuditTrail))
	for i, e := range tx.AuditTrail {
		out[i] = e.Action
	}
	return out
}

func TestProcessSuccess(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("pay_123")}}
	h := newHarness(t, sub, nil)
	h.addGateway("razorpay")

	tx, err := h.manager.Process(context.Background(), request())

	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, tx.Status)
	assert.Equal(t, "razorpay", tx.Gateway)
	assert.Equal(t, "pay_123", tx.GatewayTransactionID)
	assert.NotNil(t, tx.CompletedAt)
	assert.Greater(t, tx.RiskScore, float64(0))
	assert.Equal(t, 1, sub.calls)

	actions := auditActions(tx)
	assert.Contains(t, actions, payment.AuditRiskAssessed)
	assert.Contains(t, actions, payment.AuditGatewaySelect)
	// One STATUS_UPDATE for PROCESSING, one for SUCCESS.
	count := 0
	for _, a := range actions {
		if a == payment.AuditStatusUpdate {
			count++
		}
	}
	assert.Equal(t, 2, count)

	stored, err := h.store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Status, stored.Status)

	cfg, err := h.registry.Get("tenant_1", "razorpay")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Stats.TotalTransactions)
	assert.Equal(t, int64(1), cfg.Stats.SuccessfulCount)
	assert.Equal(t, int64(50_000), cfg.Stats.TotalVolume)
}

func TestProcessBlocksCriticalRisk(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("pay_123")}}
	h := newHarness(t, sub, fixedHistory(150))
	h.addGateway("razorpay")
	h.clock.T = time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC) // off hours

	req := request()
	req.Amount = 500_000
	req.Method = payment.MethodBNPL
	tx, err := h.manager.Process(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, payment.StatusBlocked, tx.Status)
	assert.Equal(t, "transaction blocked due to high risk", tx.FailureReason)
	assert.GreaterOrEqual(t, tx.RiskScore, payment.RiskThresholdCritical)
	assert.NotNil(t, tx.CompletedAt)

	// The gateway is never contacted and the transaction never enters
	// PROCESSING.
	assert.Zero(t, sub.calls)
	assert.NotContains(t, auditActions(tx), payment.AuditGatewaySelect)
	for _, e := range tx.AuditTrail {
		assert.NotContains(t, e.Detail, string(payment.StatusProcessing)+":")
	}
}

func TestProcessNoEligibleGateway(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("pay_123")}}
	h := newHarness(t, sub, nil)
	// No gateways registered at all.

	tx, err := h.manager.Process(context.Background(), request())

	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, tx.Status)
	assert.Equal(t, "no suitable gateway available", tx.FailureReason)
	assert.Zero(t, sub.calls)
}

func TestProcessValidation(t *testing.T) {
	h := newHarness(t, &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("x")}}, nil)

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing tenant", func(r *Request) { r.TenantID = "" }},
		{"missing customer", func(r *Request) { r.CustomerID = "" }},
		{"zero amount", func(r *Request) { r.Amount = 0 }},
		{"negative amount", func(r *Request) { r.Amount = -1 }},
		{"missing currency", func(r *Request) { r.Currency = "" }},
		{"missing method", func(r *Request) { r.Method = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request()
			tt.mutate(&req)
			_, err := h.manager.Process(context.Background(), req)
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
}

func TestRetryAfterFailureSucceeds(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){
		failWith("insufficient funds at gateway"),
		succeedWith("pay_456"),
	}}
	h := newHarness(t, sub, nil)
	h.addGateway("razorpay")
	ctx := context.Background()

	tx, err := h.manager.Process(ctx, request())
	require.NoError(t, err)
	require.Equal(t, payment.StatusFailed, tx.Status)
	assert.Equal(t, "insufficient funds at gateway", tx.FailureReason)
	assert.Equal(t, 0, tx.RetryCount)

	tx, err = h.manager.Retry(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, tx.Status)
	assert.Equal(t, 1, tx.RetryCount)
	assert.Equal(t, "pay_456", tx.GatewayTransactionID)
	assert.Equal(t, 2, sub.calls)

	// The audit trail keeps the whole history: the failed attempt, the
	// retry marker, then the successful attempt.
	actions := auditActions(tx)
	failedIdx, retryIdx, successIdx := -1, -1, -1
	for i, e := range tx.AuditTrail {
		switch {
		case e.Action == payment.AuditStatusUpdate && e.Detail == "failed: insufficient funds at gateway":
			failedIdx = i
		case e.Action == payment.AuditRetryAttempt:
			retryIdx = i
		case e.Action == payment.AuditStatusUpdate && e.Detail == "success: pay_456":
			successIdx = i
		}
	}
	require.NotEqual(t, -1, failedIdx, "actions: %v", actions)
	require.NotEqual(t, -1, retryIdx, "actions: %v", actions)
	require.NotEqual(t, -1, successIdx, "actions: %v", actions)
	assert.Less(t, failedIdx, retryIdx)
	assert.Less(t, retryIdx, successIdx)
}

func TestRetryNotRetryable(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("pay_123")}}
	h := newHarness(t, sub, nil)
	h.addGateway("razorpay")
	ctx := context.Background()

	tx, err := h.manager.Process(ctx, request())
	require.NoError(t, err)
	require.Equal(t, payment.StatusSuccess, tx.Status)

	_, err = h.manager.Retry(ctx, tx.ID)
	assert.ErrorIs(t, err, errors.ErrNotRetryable)
}

func TestRetryExhausted(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){failWith("declined")}}
	h := newHarness(t, sub, nil)
	h.addGateway("razorpay")
	ctx := context.Background()

	req := request()
	req.MaxRetries = 1
	tx, err := h.manager.Process(ctx, req)
	require.NoError(t, err)
	require.Equal(t, payment.StatusFailed, tx.Status)

	tx, err = h.manager.Retry(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, tx.Status)
	assert.Equal(t, 1, tx.RetryCount)

	_, err = h.manager.Retry(ctx, tx.ID)
	assert.ErrorIs(t, err, errors.ErrRetryExhausted)
}

func TestRetryUnknownTransaction(t *testing.T) {
	h := newHarness(t, &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("x")}}, nil)

	_, err := h.manager.Retry(context.Background(), "txn_missing")
	assert.ErrorIs(t, err, errors.ErrTransactionNotFound)
}

func TestSubmitterErrorSettlesFailed(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){
		func() (SubmitResult, error) { return SubmitResult{}, fmt.Errorf("gateway timeout") },
	}}
	h := newHarness(t, sub, nil)
	h.addGateway("razorpay")

	tx, err := h.manager.Process(context.Background(), request())

	require.NoError(t, err)
	// The transaction must never be left stuck in PROCESSING.
	assert.Equal(t, payment.StatusFailed, tx.Status)
	assert.Equal(t, "gateway timeout", tx.FailureReason)
	assert.NotNil(t, tx.CompletedAt)
}

func TestApplyWebhookStatus(t *testing.T) {
	h := newHarness(t, &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("x")}}, nil)
	ctx := context.Background()
	seed := payment.Transaction{
		ID:       "txn_wh",
		TenantID: "tenant_1",
		Status:   payment.StatusProcessing,
		Gateway:  "razorpay",
	}
	require.NoError(t, h.store.Save(ctx, seed))

	require.NoError(t, h.manager.ApplyWebhookStatus(ctx, "txn_wh", payment.StatusSuccess, "evt_1"))

	tx, err := h.store.Get(ctx, "txn_wh")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, tx.Status)
	last := tx.AuditTrail[len(tx.AuditTrail)-1]
	assert.Equal(t, payment.AuditWebhookApplied, last.Action)
	assert.Equal(t, "evt_1", last.Detail)
	trailLen := len(tx.AuditTrail)

	// Re-delivering the same status is a no-op.
	require.NoError(t, h.manager.ApplyWebhookStatus(ctx, "txn_wh", payment.StatusSuccess, "evt_2"))
	tx, err = h.store.Get(ctx, "txn_wh")
	require.NoError(t, err)
	assert.Len(t, tx.AuditTrail, trailLen)
}

// callbackSubmitter reports a confirmed status through the manager while the
// gateway call is still in flight, the way a fast gateway calls back before
// the submission response returns.
type callbackSubmitter struct {
	manager *Manager
	status  payment.Status
	result  SubmitResult
	calls   int
}

func (s *callbackSubmitter) Submit(ctx context.Context, tx payment.Transaction, _ payment.GatewayConfig) (SubmitResult, error) {
	s.calls++
	if err := s.manager.ApplyWebhookStatus(ctx, tx.ID, s.status, "evt_early"); err != nil {
		return SubmitResult{}, err
	}
	return s.result, nil
}

func TestWebhookDuringSubmissionWins(t *testing.T) {
	sub := &callbackSubmitter{
		status: payment.StatusSuccess,
		result: SubmitResult{Success: false, ErrorMessage: "gateway timeout"},
	}
	h := newHarness(t, sub, nil)
	sub.manager = h.manager
	h.addGateway("razorpay")

	tx, err := h.manager.Process(context.Background(), request())

	require.NoError(t, err)
	// The submitter ran to completion, so the callback was applied without
	// waiting on the submission path, and its confirmed status is not
	// overwritten by the late gateway outcome.
	assert.Equal(t, 1, sub.calls)
	assert.Equal(t, payment.StatusSuccess, tx.Status)
	assert.NotNil(t, tx.CompletedAt)

	stored, err := h.store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, stored.Status)
	last := stored.AuditTrail[len(stored.AuditTrail)-1]
	assert.Equal(t, payment.AuditWebhookApplied, last.Action)
}

func TestStatusEventsEmitted(t *testing.T) {
	sub := &scriptSubmitter{script: []func() (SubmitResult, error){succeedWith("pay_123")}}
	h := newHarness(t, sub, nil)
	h.addGateway("razorpay")

	_, err := h.manager.Process(context.Background(), request())
	require.NoError(t, err)

	var states []string
	for _, ev := range *h.events {
		if ev.Type == events.TypeTransactionStatusChanged {
			states = append(states, ev.State)
		}
	}
	assert.Equal(t, []string{"processing", "success"}, states)
}
