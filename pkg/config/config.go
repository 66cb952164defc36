// Package config loads engine configuration from YAML. Gateways and routing
// rules declared here are seeded into the registry and rule store at startup;
// everything else tunes infrastructure (storage, queue, events, workers).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/payment"
)

// Config is the root engine configuration.
type Config struct {
	AWS     AWS       `yaml:"aws"`
	Storage Storage   `yaml:"storage"`
	Queue   Queue     `yaml:"queue"`
	Events  Events    `yaml:"events"`
	Webhook Webhook   `yaml:"webhook"`
	Risk    Risk      `yaml:"risk"`
	Health  Health    `yaml:"health"`
	Gateways []Gateway `yaml:"gateways"`
	Rules    []Rule    `yaml:"rules"`
}

// AWS holds the shared AWS client settings.
type AWS struct {
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	MaxRetries int    `yaml:"max_retries"`
	// RoleARN, when set, makes all AWS calls under an assumed role.
	RoleARN    string `yaml:"role_arn"`
	ExternalID string `yaml:"external_id"`
}

// Storage selects the persistence backend.
type Storage struct {
	// Driver is "memory" or "dynamodb".
	Driver            string `yaml:"driver"`
	TransactionsTable string `yaml:"transactions_table"`
	EventsTable       string `yaml:"events_table"`
	MetricsTable      string `yaml:"metrics_table"`
	RulesTable        string `yaml:"rules_table"`
}

// Queue selects the webhook work queue backend.
type Queue struct {
	// Driver is "channel" or "redis".
	Driver     string `yaml:"driver"`
	BufferSize int    `yaml:"buffer_size"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// Events configures the domain event emitter.
type Events struct {
	// Driver is "none", "bus" or "kafka".
	Driver  string   `yaml:"driver"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Webhook tunes the ingestion pipeline.
type Webhook struct {
	Workers     int `yaml:"workers"`
	MaxAttempts int `yaml:"max_attempts"`
	// Scheme is "hmac", "legacy" or "none".
	Scheme string `yaml:"scheme"`
	// SecretKeyARN enables KMS decryption of gateway webhook secrets.
	SecretKeyARN string `yaml:"secret_key_arn"`
	// ArchiveBucket enables S3 archival of processed payloads.
	ArchiveBucket string `yaml:"archive_bucket"`
}

// Risk tunes the assessment engine.
type Risk struct {
	BusinessHoursStart int `yaml:"business_hours_start"`
	BusinessHoursEnd   int `yaml:"business_hours_end"`
}

// Health configures the gateway health sweep.
type Health struct {
	Interval time.Duration `yaml:"interval"`
}

// Gateway declares one gateway to seed into the registry.
type Gateway struct {
	TenantID           string   `yaml:"tenant_id"`
	Gateway            string   `yaml:"gateway"`
	Priority           int      `yaml:"priority"`
	FeeRate            float64  `yaml:"fee_rate"`
	MinAmount          int64    `yaml:"min_amount"`
	MaxAmount          int64    `yaml:"max_amount"`
	Currencies         []string `yaml:"currencies"`
	Methods            []string `yaml:"methods"`
	WebhookSecret      string   `yaml:"webhook_secret"`
	InitialSuccessRate float64  `yaml:"initial_success_rate"`
}

// Rule declares one routing rule.
type Rule struct {
	TenantID   string      `yaml:"tenant_id"`
	Name       string      `yaml:"name"`
	Priority   int         `yaml:"priority"`
	Active     *bool       `yaml:"active"`
	Conditions []Condition `yaml:"conditions"`
	Action     Action      `yaml:"action"`
}

// Condition is one rule predicate.
type Condition struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

// Action is what a matching rule does to the candidate set.
type Action struct {
	PreferredGateways []string `yaml:"preferred_gateways"`
	FallbackGateways  []string `yaml:"fallback_gateways"`
	FeeOverride       *float64 `yaml:"fee_override"`
	MaxRetryOverride  *int     `yaml:"max_retry_override"`
}

// Default returns a configuration suitable for local development: in-memory
// storage, in-process queue, no event emission.
func Default() *Config {
	return &Config{
		AWS:     AWS{Region: "us-east-1", MaxRetries: 3},
		Storage: Storage{Driver: "memory"},
		Queue:   Queue{Driver: "channel", BufferSize: 1024},
		Events:  Events{Driver: "none"},
		Webhook: Webhook{Workers: 4, MaxAttempts: payment.DefaultMaxAttempts, Scheme: "hmac"},
		Risk:    Risk{BusinessHoursStart: 6, BusinessHoursEnd: 22},
		Health:  Health{Interval: 30 * time.Second},
	}
}

// Load reads and parses the YAML file at path, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration, applying environment overrides and
// defaults before validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays deployment-environment overrides onto the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("ROUTEPAY_AWS_REGION"); v != "" {
		c.AWS.Region = v
	}
	if v := os.Getenv("ROUTEPAY_REDIS_ADDR"); v != "" {
		c.Queue.RedisAddr = v
	}
	if v := os.Getenv("ROUTEPAY_ARCHIVE_BUCKET"); v != "" {
		c.Webhook.ArchiveBucket = v
	}
	if v := os.Getenv("ROUTEPAY_WEBHOOK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Webhook.Workers = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.MaxRetries <= 0 {
		c.AWS.MaxRetries = 3
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = "channel"
	}
	if c.Queue.BufferSize <= 0 {
		c.Queue.BufferSize = 1024
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Webhook.Workers <= 0 {
		c.Webhook.Workers = 4
	}
	if c.Webhook.MaxAttempts <= 0 {
		c.Webhook.MaxAttempts = payment.DefaultMaxAttempts
	}
	if c.Webhook.Scheme == "" {
		c.Webhook.Scheme = "hmac"
	}
	if c.Risk.BusinessHoursStart == 0 && c.Risk.BusinessHoursEnd == 0 {
		c.Risk.BusinessHoursStart = 6
		c.Risk.BusinessHoursEnd = 22
	}
	if c.Health.Interval <= 0 {
		c.Health.Interval = 30 * time.Second
	}
}

// Validate checks the configuration for contradictions before any client
// is built from it.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "dynamodb":
		if c.Storage.TransactionsTable == "" || c.Storage.EventsTable == "" ||
			c.Storage.MetricsTable == "" || c.Storage.RulesTable == "" {
			return fmt.Errorf("%w: dynamodb storage requires all table names", errors.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", errors.ErrValidation, c.Storage.Driver)
	}

	switch c.Queue.Driver {
	case "channel":
	case "redis":
		if c.Queue.RedisAddr == "" {
			return fmt.Errorf("%w: redis queue requires redis_addr", errors.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown queue driver %q", errors.ErrValidation, c.Queue.Driver)
	}

	switch c.Events.Driver {
	case "none", "bus":
	case "kafka":
		if len(c.Events.Brokers) == 0 || c.Events.Topic == "" {
			return fmt.Errorf("%w: kafka events require brokers and topic", errors.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown events driver %q", errors.ErrValidation, c.Events.Driver)
	}

	switch c.Webhook.Scheme {
	case "hmac", "legacy", "none":
	default:
		return fmt.Errorf("%w: unknown webhook scheme %q", errors.ErrValidation, c.Webhook.Scheme)
	}

	for i, gw := range c.Gateways {
		if gw.Gateway == "" || gw.TenantID == "" {
			return fmt.Errorf("%w: gateways[%d] requires tenant_id and gateway", errors.ErrValidation, i)
		}
	}
	for i, r := range c.Rules {
		for j, cond := range r.Conditions {
			if !validOperator(cond.Operator) {
				return fmt.Errorf("%w: rules[%d].conditions[%d] has unknown operator %q",
					errors.ErrValidation, i, j, cond.Operator)
			}
		}
	}
	return nil
}

func validOperator(op string) bool {
	switch payment.Operator(op) {
	case payment.OpEquals, payment.OpNotEquals, payment.OpGreaterThan,
		payment.OpLessThan, payment.OpContains, payment.OpIn, payment.OpNotIn:
		return true
	}
	return false
}

// GatewayConfigs converts the declared gateways to registry entries.
func (c *Config) GatewayConfigs() []payment.GatewayConfig {
	out := make([]payment.GatewayConfig, 0, len(c.Gateways))
	for _, gw := range c.Gateways {
		methods := make([]payment.Method, 0, len(gw.Methods))
		for _, m := range gw.Methods {
			methods = append(methods, payment.Method(m))
		}
		out = append(out, payment.GatewayConfig{
			TenantID:            gw.TenantID,
			Gateway:             gw.Gateway,
			Active:              true,
			Priority:            gw.Priority,
			FeeRate:             gw.FeeRate,
			MinAmount:           gw.MinAmount,
			MaxAmount:           gw.MaxAmount,
			SupportedCurrencies: gw.Currencies,
			SupportedMethods:    methods,
			WebhookSecret:       gw.WebhookSecret,
			SuccessRate:         gw.InitialSuccessRate,
		})
	}
	return out
}

// RoutingRules converts the declared rules to store entries.
func (c *Config) RoutingRules() []payment.RoutingRule {
	out := make([]payment.RoutingRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		active := true
		if r.Active != nil {
			active = *r.Active
		}
		conds := make([]payment.Condition, 0, len(r.Conditions))
		for _, cond := range r.Conditions {
			conds = append(conds, payment.Condition{
				Field:    cond.Field,
				Operator: payment.Operator(cond.Operator),
				Value:    cond.Value,
			})
		}
		out = append(out, payment.RoutingRule{
			TenantID:   r.TenantID,
			Name:       r.Name,
			Priority:   r.Priority,
			Active:     active,
			Conditions: conds,
			Action: payment.RuleAction{
				PreferredGateways: r.Action.PreferredGateways,
				FallbackGateways:  r.Action.FallbackGateways,
				FeeOverride:       r.Action.FeeOverride,
				MaxRetryOverride:  r.Action.MaxRetryOverride,
			},
		})
	}
	return out
}
