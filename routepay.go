// Package routepay is a payment routing and reliability engine: it scores
// transaction risk, selects the optimal gateway per tenant, drives each
// transaction through its state machine with bounded retries, ingests
// gateway webhooks idempotently and keeps rolling per-gateway performance
// metrics that feed back into routing.
package routepay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/routepay/routepay/pkg/archive"
	"github.com/routepay/routepay/pkg/clock"
	"github.com/routepay/routepay/pkg/config"
	"github.com/routepay/routepay/pkg/events"
	"github.com/routepay/routepay/pkg/idgen"
	"github.com/routepay/routepay/pkg/lifecycle"
	"github.com/routepay/routepay/pkg/metrics"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/registry"
	"github.com/routepay/routepay/pkg/risk"
	"github.com/routepay/routepay/pkg/routing"
	"github.com/routepay/routepay/pkg/secrets"
	"github.com/routepay/routepay/pkg/session"
	"github.com/routepay/routepay/pkg/storage"
	"github.com/routepay/routepay/pkg/storage/dynamo"
	"github.com/routepay/routepay/pkg/storage/memory"
	"github.com/routepay/routepay/pkg/webhook"
)

// Engine is the assembled payment routing engine. Build one with New and a
// configuration; the zero value is not usable.
type Engine struct {
	cfg *config.Config

	registry   *registry.Registry
	assessor   *risk.Assessor
	router     *routing.Engine
	manager    *lifecycle.Manager
	ingestor   *webhook.Ingestor
	aggregator *metrics.Aggregator
	health     *metrics.HealthChecker
	emitter    events.Emitter
	rules      storage.RuleStore
	opener     SecretOpener
	log        *slog.Logger
}

// SecretOpener decrypts sealed webhook secrets from the configuration. The
// KMS-backed secrets service implements it.
type SecretOpener interface {
	Open(ctx context.Context, tenantID, gateway, sealed string) (string, error)
}

// Option customizes engine assembly.
type Option func(*options)

type options struct {
	submitter lifecycle.Submitter
	prober    metrics.Prober
	history   risk.CustomerHistoryProvider
	verifier  webhook.Verifier
	emitter   events.Emitter
	clock     clock.Clock
	ids       idgen.Generator
	log       *slog.Logger

	txStore      storage.TransactionStore
	eventStore   storage.WebhookEventStore
	metricsStore storage.MetricsStore
	ruleStore    storage.RuleStore
	queue        webhook.Queue
	archiver     webhook.Archiver
	opener       SecretOpener
}

// WithSubmitter sets the gateway submitter. Required for processing.
func WithSubmitter(s lifecycle.Submitter) Option {
	return func(o *options) { o.submitter = s }
}

// WithProber enables the periodic gateway health sweep.
func WithProber(p metrics.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithCustomerHistory wires a customer-history source into risk assessment.
func WithCustomerHistory(h risk.CustomerHistoryProvider) Option {
	return func(o *options) { o.history = h }
}

// WithVerifier overrides the webhook signature verifier selected by the
// configured scheme.
func WithVerifier(v webhook.Verifier) Option {
	return func(o *options) { o.verifier = v }
}

// WithEmitter overrides the event emitter selected by the configured driver.
func WithEmitter(e events.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithClock substitutes the time source. Tests use a fixed clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator substitutes the id generator. Tests use a sequence.
func WithIDGenerator(g idgen.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithLogger sets the structured logger for all components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStores overrides the storage backends selected by the configured
// driver. Any nil store keeps the configured default.
func WithStores(tx storage.TransactionStore, ev storage.WebhookEventStore, m storage.MetricsStore, r storage.RuleStore) Option {
	return func(o *options) {
		o.txStore = tx
		o.eventStore = ev
		o.metricsStore = m
		o.ruleStore = r
	}
}

// WithQueue overrides the webhook queue selected by the configured driver.
func WithQueue(q webhook.Queue) Option {
	return func(o *options) { o.queue = q }
}

// WithArchiver overrides the payload archiver.
func WithArchiver(a webhook.Archiver) Option {
	return func(o *options) { o.archiver = a }
}

// WithSecretOpener overrides the KMS-backed opener for sealed webhook
// secrets.
func WithSecretOpener(s SecretOpener) Option {
	return func(o *options) { o.opener = s }
}

// New assembles an engine from configuration. Gateways and rules declared in
// the configuration are seeded before New returns.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.submitter == nil {
		return nil, fmt.Errorf("a gateway submitter is required: use WithSubmitter")
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.clock == nil {
		o.clock = clock.System{}
	}
	if o.ids == nil {
		o.ids = idgen.UUID{}
	}

	if err := buildStores(cfg, o); err != nil {
		return nil, err
	}
	if err := buildQueue(cfg, o); err != nil {
		return nil, err
	}
	if o.opener == nil && cfg.Webhook.SecretKeyARN != "" {
		sess, err := session.NewSession(&session.Config{
			Region:     cfg.AWS.Region,
			MaxRetries: cfg.AWS.MaxRetries,
			RoleARN:    cfg.AWS.RoleARN,
			ExternalID: cfg.AWS.ExternalID,
		})
		if err != nil {
			return nil, err
		}
		o.opener = secrets.NewServiceFromAWSConfig(cfg.Webhook.SecretKeyARN, sess.AWSConfig())
	}
	emitter := o.emitter
	if emitter == nil {
		switch cfg.Events.Driver {
		case "kafka":
			emitter = events.NewKafkaEmitter(cfg.Events.Brokers, cfg.Events.Topic, o.log)
		case "bus":
			emitter = events.NewBus()
		default:
			emitter = events.Nop{}
		}
	}
	verifier := o.verifier
	if verifier == nil {
		switch cfg.Webhook.Scheme {
		case "legacy":
			verifier = webhook.LegacyVerifier{}
		case "none":
			verifier = webhook.SkipVerifier{}
		default:
			verifier = webhook.HMACVerifier{}
		}
	}

	reg := registry.New(o.ids, o.clock, emitter, o.log)
	riskCfg := risk.Config{
		BusinessHoursStart: cfg.Risk.BusinessHoursStart,
		BusinessHoursEnd:   cfg.Risk.BusinessHoursEnd,
	}
	assessor := risk.New(riskCfg, o.ids, o.clock, o.history, o.log)
	router := routing.New(reg, o.ruleStore, o.log)
	aggregator := metrics.New(o.metricsStore, reg, o.clock, o.log)
	manager := lifecycle.New(o.txStore, reg, assessor, router, o.submitter,
		aggregator, emitter, o.ids, o.clock, o.log)
	ingestor := webhook.NewIngestor(o.eventStore, reg, manager, aggregator,
		o.archiver, verifier, o.queue, cfg.Webhook.MaxAttempts, o.ids, o.clock, o.log)

	eng := &Engine{
		cfg:        cfg,
		registry:   reg,
		assessor:   assessor,
		router:     router,
		manager:    manager,
		ingestor:   ingestor,
		aggregator: aggregator,
		emitter:    emitter,
		rules:      o.ruleStore,
		opener:     o.opener,
		log:        o.log,
	}
	if o.prober != nil {
		eng.health = metrics.NewHealthChecker(reg, o.prober, reg, cfg.Health.Interval, o.log)
	}

	if err := eng.seed(cfg); err != nil {
		return nil, err
	}
	return eng, nil
}

func buildStores(cfg *config.Config, o *options) error {
	if o.txStore != nil && o.eventStore != nil && o.metricsStore != nil && o.ruleStore != nil {
		return nil
	}
	switch cfg.Storage.Driver {
	case "dynamodb":
		sess, err := session.NewSession(&session.Config{
			Region:     cfg.AWS.Region,
			Endpoint:   cfg.AWS.Endpoint,
			MaxRetries: cfg.AWS.MaxRetries,
			RoleARN:    cfg.AWS.RoleARN,
			ExternalID: cfg.AWS.ExternalID,
		})
		if err != nil {
			return err
		}
		client, err := sess.DynamoDB()
		if err != nil {
			return err
		}
		if o.txStore == nil {
			o.txStore = dynamo.NewTransactionStore(client, cfg.Storage.TransactionsTable)
		}
		if o.eventStore == nil {
			o.eventStore = dynamo.NewWebhookEventStore(client, cfg.Storage.EventsTable)
		}
		if o.metricsStore == nil {
			o.metricsStore = dynamo.NewMetricsStore(client, cfg.Storage.MetricsTable)
		}
		if o.ruleStore == nil {
			o.ruleStore = dynamo.NewRuleStore(client, cfg.Storage.RulesTable)
		}
		if o.archiver == nil && cfg.Webhook.ArchiveBucket != "" {
			o.archiver = archive.NewS3Archiver(sess.S3(), cfg.Webhook.ArchiveBucket)
		}
	default:
		if o.txStore == nil {
			o.txStore = memory.NewTransactionStore()
		}
		if o.eventStore == nil {
			o.eventStore = memory.NewWebhookEventStore()
		}
		if o.metricsStore == nil {
			o.metricsStore = memory.NewMetricsStore()
		}
		if o.ruleStore == nil {
			o.ruleStore = memory.NewRuleStore()
		}
	}
	return nil
}

func buildQueue(cfg *config.Config, o *options) error {
	if o.queue != nil {
		return nil
	}
	switch cfg.Queue.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Queue.RedisAddr,
			DB:   cfg.Queue.RedisDB,
		})
		o.queue = webhook.NewRedisQueue(client, cfg.Queue.KeyPrefix)
	default:
		o.queue = webhook.NewChannelQueue(cfg.Queue.BufferSize)
	}
	return nil
}

// seed loads the configured gateways and rules. When a secret opener is
// configured, gateway webhook secrets in the file are treated as sealed
// envelopes and decrypted here.
func (e *Engine) seed(cfg *config.Config) error {
	ctx := context.Background()
	for _, gw := range cfg.GatewayConfigs() {
		if e.opener != nil && gw.WebhookSecret != "" {
			plain, err := e.opener.Open(ctx, gw.TenantID, gw.Gateway, gw.WebhookSecret)
			if err != nil {
				return fmt.Errorf("open webhook secret for %s/%s: %w", gw.TenantID, gw.Gateway, err)
			}
			gw.WebhookSecret = plain
		}
		e.registry.Upsert(gw)
	}
	for _, rule := range cfg.RoutingRules() {
		if rule.ID == "" {
			rule.ID = idgen.UUID{}.NewID(idgen.PrefixRule)
		}
		if err := e.rules.Save(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", rule.Name, err)
		}
	}
	return nil
}

// Start launches the webhook workers and, when a prober is configured, the
// gateway health sweep.
func (e *Engine) Start(ctx context.Context) {
	e.ingestor.Start(ctx, e.cfg.Webhook.Workers)
	if e.health != nil {
		go e.health.Run(ctx)
	}
}

// Stop winds down the webhook workers. In-flight processing completes.
func (e *Engine) Stop() {
	e.ingestor.Stop()
}

// Process creates and settles a transaction for the request.
func (e *Engine) Process(ctx context.Context, req lifecycle.Request) (payment.Transaction, error) {
	return e.manager.Process(ctx, req)
}

// Retry re-drives a failed transaction through routing and submission.
func (e *Engine) Retry(ctx context.Context, id string) (payment.Transaction, error) {
	return e.manager.Retry(ctx, id)
}

// Transaction returns a transaction by id.
func (e *Engine) Transaction(ctx context.Context, id string) (payment.Transaction, error) {
	return e.manager.Get(ctx, id)
}

// ReceiveWebhook records, verifies and queues an inbound gateway callback.
func (e *Engine) ReceiveWebhook(ctx context.Context, r webhook.Receipt) (webhook.Result, error) {
	return e.ingestor.Receive(ctx, r)
}

// RegisterGateway adds or updates a gateway configuration at runtime.
func (e *Engine) RegisterGateway(cfg payment.GatewayConfig) payment.GatewayConfig {
	return e.registry.Upsert(cfg)
}

// Gateways lists a tenant's gateway configurations.
func (e *Engine) Gateways(tenantID string) []payment.GatewayConfig {
	return e.registry.ListByTenant(tenantID)
}

// AddRule saves a routing rule.
func (e *Engine) AddRule(ctx context.Context, rule payment.RoutingRule) error {
	if rule.ID == "" {
		rule.ID = idgen.UUID{}.NewID(idgen.PrefixRule)
	}
	return e.rules.Save(ctx, rule)
}

// GatewayMetrics returns the current hourly bucket for a gateway.
func (e *Engine) GatewayMetrics(ctx context.Context, tenantID, gateway string) (payment.PerformanceMetrics, error) {
	return e.aggregator.Current(ctx, tenantID, gateway)
}
