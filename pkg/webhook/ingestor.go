// Package webhook ingests asynchronous gateway callbacks: it verifies
// signatures, records every event, queues verified events for bounded-
// concurrency processing, applies gateway-reported statuses to
// transactions, and retries failed processing with exponential backoff.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/idgen"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/storage"
)

// StatusApplier applies a webhook-reported status to a transaction under
// the lifecycle manager's per-id lock.
type StatusApplier interface {
	ApplyWebhookStatus(ctx context.Context, txID string, status payment.Status, eventID string) error
}

// GatewayDirectory resolves gateway configurations (for webhook secrets)
// and tracks webhook failures. The gateway registry implements it.
type GatewayDirectory interface {
	Get(tenantID, gateway string) (payment.GatewayConfig, error)
	RecordWebhookFailure(tenantID, gateway string) error
}

// OutcomeRecorder receives webhook-confirmed outcomes. The performance
// aggregator implements it. Webhooks carry no round-trip measurement, so
// they record with responseTime zero, which counts the outcome without
// folding a latency sample into the average.
type OutcomeRecorder interface {
	Record(ctx context.Context, tenantID, gateway string, success bool, responseTime time.Duration) error
}

// Archiver retains raw payloads of terminally processed events.
type Archiver interface {
	Archive(ctx context.Context, ev payment.WebhookEvent) error
}

// Receipt is an inbound webhook delivery.
type Receipt struct {
	TenantID  string
	Gateway   string
	Headers   map[string]string
	Payload   []byte
	Signature string
}

// Result reports receipt handling to the caller.
type Result struct {
	Accepted bool   `json:"accepted"`
	EventID  string `json:"event_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Ingestor is the webhook ingestion pipeline.
type Ingestor struct {
	store    storage.WebhookEventStore
	gateways GatewayDirectory
	applier  StatusApplier
	recorder OutcomeRecorder
	archiver Archiver
	verifier    Verifier
	queue       Queue
	ids         idgen.Generator
	clock       clock.Clock
	maxAttempts int
	log         *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	retryWG sync.WaitGroup
}

// NewIngestor wires an ingestion pipeline. recorder and archiver may be nil;
// maxAttempts <= 0 falls back to payment.DefaultMaxAttempts.
func NewIngestor(
	store storage.WebhookEventStore,
	gateways GatewayDirectory,
	applier StatusApplier,
	recorder OutcomeRecorder,
	archiver Archiver,
	verifier Verifier,
	queue Queue,
	maxAttempts int,
	ids idgen.Generator,
	clk clock.Clock,
	log *slog.Logger,
) *Ingestor {
	if verifier == nil {
		verifier = HMACVerifier{}
	}
	if maxAttempts <= 0 {
		maxAttempts = payment.DefaultMaxAttempts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		store:       store,
		gateways:    gateways,
		applier:     applier,
		recorder:    recorder,
		archiver:    archiver,
		verifier:    verifier,
		queue:       queue,
		ids:         ids,
		clock:       clk,
		maxAttempts: maxAttempts,
		log:         log.With(slog.String("component", "webhook-ingestor")),
	}
}

// Receive records an inbound delivery, verifies its signature and queues it
// for processing. The event is recorded even when verification fails, but
// only verified events reach the queue. Re-delivery of an event id that
// already completed is detected here and becomes a no-op.
func (in *Ingestor) Receive(ctx context.Context, r Receipt) (Result, error) {
	if r.Gateway == "" || len(r.Payload) == 0 {
		return Result{Error: "gateway and payload are required"},
			fmt.Errorf("%w: gateway and payload are required", errors.ErrValidation)
	}

	ex, err := extract(r.Payload)
	if err != nil {
		return Result{Error: "malformed payload"},
			fmt.Errorf("%w: malformed payload: %v", errors.ErrValidation, err)
	}

	now := in.clock.Now()
	ev := payment.WebhookEvent{
		ID:            in.ids.NewID(idgen.PrefixWebhook),
		TenantID:      r.TenantID,
		Gateway:       r.Gateway,
		EventType:     ex.EventType,
		CorrelationID: ex.CorrelationID,
		TransactionID: ex.TransactionID,
		Payload:       r.Payload,
		Headers:       r.Headers,
		Signature:     r.Signature,
		Status:        payment.EventPending,
		MaxAttempts:   in.maxAttempts,
		ReceivedAt:    now,
		OccurredAt:    ex.OccurredAt,
	}

	cfg, err := in.gateways.Get(r.TenantID, r.Gateway)
	if err != nil {
		return Result{Error: "unknown gateway"}, errors.NewError("webhook.receive", r.Gateway, err)
	}

	verifier := in.verifier
	if cfg.WebhookSecret == "" {
		verifier = SkipVerifier{}
	}
	if !verifier.Verify(r.Payload, r.Signature, cfg.WebhookSecret) {
		if err := in.store.Save(ctx, ev); err != nil {
			in.log.Error("record unverified event failed", "event", ev.ID, "error", err)
		}
		in.log.Warn("webhook signature verification failed",
			"event", ev.ID, "gateway", r.Gateway)
		return Result{EventID: ev.ID, Error: "signature verification failed"},
			errors.NewError("webhook.receive", ev.ID, errors.ErrSignatureInvalid)
	}

	// Idempotency gate, only after the sender proved authentic: the same
	// gateway event id, once completed, must not be processed again.
	if ex.CorrelationID != "" {
		if existing, err := in.store.GetByCorrelation(ctx, r.Gateway, ex.CorrelationID); err == nil {
			if existing.Status == payment.EventCompleted {
				in.log.Info("duplicate webhook delivery ignored",
					"event", existing.ID, "gateway", r.Gateway, "correlation", ex.CorrelationID)
				return Result{Accepted: true, EventID: existing.ID}, nil
			}
		}
	}

	ev = ev.WithVerified()
	if err := in.store.Save(ctx, ev); err != nil {
		return Result{Error: "storage failure"}, errors.NewError("webhook.receive", ev.ID, err)
	}
	if err := in.queue.Enqueue(ctx, ev.ID); err != nil {
		return Result{EventID: ev.ID, Error: "queue failure"}, errors.NewError("webhook.receive", ev.ID, err)
	}

	in.log.Info("webhook event accepted",
		"event", ev.ID, "gateway", r.Gateway,
		"type", ev.EventType, "transaction", ev.TransactionID)
	return Result{Accepted: true, EventID: ev.ID}, nil
}

// Start launches the bounded worker pool consuming the queue. Workers stop
// when Stop is called or the parent context is cancelled.
func (in *Ingestor) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 4
	}
	ctx, in.cancel = context.WithCancel(ctx)
	for i := 0; i < workers; i++ {
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			in.consume(ctx)
		}()
	}
}

// Stop cancels the workers and waits for in-flight processing and pending
// retry timers to wind down.
func (in *Ingestor) Stop() {
	if in.cancel != nil {
		in.cancel()
	}
	_ = in.queue.Close()
	in.wg.Wait()
	in.retryWG.Wait()
}

func (in *Ingestor) consume(ctx context.Context) {
	for {
		id, err := in.queue.Dequeue(ctx)
		if err != nil {
			return
		}
		in.Process(ctx, id)
		if err := in.queue.Ack(ctx, id); err != nil {
			in.log.Warn("queue ack failed", "event", id, "error", err)
		}
	}
}

// Process runs one processing attempt for the event. It is exported so a
// scheduler draining overdue retries can drive it directly.
func (in *Ingestor) Process(ctx context.Context, eventID string) {
	ev, err := in.store.Get(ctx, eventID)
	if err != nil {
		in.log.Error("event load failed", "event", eventID, "error", err)
		return
	}
	// Idempotency: terminal events are never re-processed.
	if ev.Status == payment.EventCompleted || ev.Status == payment.EventFailed {
		return
	}

	ev = ev.WithProcessingStarted()
	if err := in.store.Save(ctx, ev); err != nil {
		in.log.Error("event save failed", "event", ev.ID, "error", err)
		return
	}

	if err := in.apply(ctx, &ev); err != nil {
		in.fail(ctx, ev, err)
		return
	}

	ev = ev.WithCompleted(in.clock.Now())
	if err := in.store.Save(ctx, ev); err != nil {
		in.log.Error("event save failed", "event", ev.ID, "error", err)
		return
	}
	in.archive(ctx, ev)
	in.log.Info("webhook event processed",
		"event", ev.ID, "type", ev.EventType, "transaction", ev.TransactionID)
}

// apply maps the gateway status onto the transaction and feeds confirmed
// outcomes to the aggregator.
func (in *Ingestor) apply(ctx context.Context, ev *payment.WebhookEvent) error {
	ex, err := extract(ev.Payload)
	if err != nil {
		return fmt.Errorf("re-parse payload: %w", err)
	}
	if ex.TransactionID == "" {
		// Nothing to update; informational events complete as-is.
		return nil
	}

	if !ex.HasStatus {
		return nil
	}

	if err := in.applier.ApplyWebhookStatus(ctx, ex.TransactionID, ex.Status, ev.ID); err != nil {
		if errors.IsNotFound(err) {
			// An unknown id cannot appear by retrying; note it and move on.
			ev.LastError = "transaction missing: " + ex.TransactionID
			return nil
		}
		return fmt.Errorf("apply status: %w", err)
	}

	if in.recorder != nil {
		switch ex.Status {
		case payment.StatusSuccess, payment.StatusFailed:
			if err := in.recorder.Record(ctx, ev.TenantID, ev.Gateway, ex.Status == payment.StatusSuccess, 0); err != nil {
				in.log.Warn("webhook outcome record failed", "event", ev.ID, "error", err)
			}
		}
	}
	return nil
}

// fail consumes one retry and either schedules the next attempt or settles
// the event as terminally failed.
func (in *Ingestor) fail(ctx context.Context, ev payment.WebhookEvent, cause error) {
	now := in.clock.Now()
	ev = ev.WithFailure(now, cause.Error())
	if err := in.store.Save(ctx, ev); err != nil {
		in.log.Error("event save failed", "event", ev.ID, "error", err)
		return
	}

	switch ev.Status {
	case payment.EventRetrying:
		delay := ev.NextRetryAt.Sub(now)
		in.log.Warn("webhook processing failed, retry scheduled",
			"event", ev.ID, "attempts", ev.Attempts, "next_retry", ev.NextRetryAt, "error", cause)
		in.scheduleRetry(ctx, ev.ID, delay)
	case payment.EventFailed:
		in.log.Error("webhook processing exhausted retries",
			"event", ev.ID, "attempts", ev.Attempts, "error", cause)
		if err := in.gateways.RecordWebhookFailure(ev.TenantID, ev.Gateway); err != nil {
			in.log.Warn("webhook failure count update failed",
				"gateway", ev.Gateway, "error", err)
		}
		in.archive(ctx, ev)
	}
}

// scheduleRetry re-enqueues the event after the backoff delay. The timer is
// cancelled by context shutdown, and an event that reached a terminal state
// in the meantime is not re-enqueued.
func (in *Ingestor) scheduleRetry(ctx context.Context, eventID string, delay time.Duration) {
	in.retryWG.Add(1)
	go func() {
		defer in.retryWG.Done()
		select {
		case <-ctx.Done():
			return
		case <-in.clock.After(delay):
		}
		ev, err := in.store.Get(ctx, eventID)
		if err != nil || ev.Status != payment.EventRetrying {
			return
		}
		if err := in.queue.Enqueue(ctx, eventID); err != nil {
			in.log.Error("retry enqueue failed", "event", eventID, "error", err)
		}
	}()
}

func (in *Ingestor) archive(ctx context.Context, ev payment.WebhookEvent) {
	if in.archiver == nil {
		return
	}
	if err := in.archiver.Archive(ctx, ev); err != nil {
		in.log.Warn("payload archive failed", "event", ev.ID, "error", err)
	}
}
