// Package session provides AWS client configuration shared by the
// DynamoDB stores, the KMS secret provider and the S3 payload archiver.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// configLoadFunc is a variable to allow mocking config.LoadDefaultConfig in tests
var configLoadFunc = config.LoadDefaultConfig

// Config holds the AWS session configuration.
type Config struct {
	CredentialsProvider aws.CredentialsProvider
	Region              string
	Endpoint            string
	AWSConfigOptions    []func(*config.LoadOptions) error
	MaxRetries          int

	// RoleARN, when set, wraps the base credentials in an STS assume-role
	// provider. Used when the engine's data plane lives in a separate
	// account from the compute.
	RoleARN         string
	ExternalID      string
	SessionDuration time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Region:     "us-east-1",
		MaxRetries: 3,
	}
}

// Session holds a loaded AWS config and lazily shares clients built from it.
type Session struct {
	config    *Config
	awsConfig aws.Config
	dynamo    *dynamodb.Client
}

// NewSession loads AWS configuration and prepares the shared clients.
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+5)
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}
	if cfg.CredentialsProvider != nil {
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options, config.WithRetryMode(aws.RetryModeStandard))
	options = append(options, config.WithRetryMaxAttempts(maxAttempts))
	options = append(options, config.WithHTTPClient(&http.Client{}))
	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(context.Background(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if awsConfig.Retryer == nil {
		awsConfig.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
			})
		}
	}

	if cfg.RoleARN != "" {
		awsConfig.Credentials = assumeRoleProvider(awsConfig, cfg)
	}

	dynamoOptions := func(o *dynamodb.Options) {
		o.Region = awsConfig.Region
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}
	client := dynamodb.NewFromConfig(awsConfig, dynamoOptions)
	if client == nil {
		return nil, fmt.Errorf("failed to create DynamoDB client")
	}

	return &Session{
		config:    cfg,
		awsConfig: awsConfig,
		dynamo:    client,
	}, nil
}

// assumeRoleProvider builds cached STS credentials for the configured role.
func assumeRoleProvider(base aws.Config, cfg *Config) aws.CredentialsProvider {
	stsClient := sts.NewFromConfig(base)
	duration := cfg.SessionDuration
	if duration == 0 {
		duration = time.Hour
	}
	provider := stscreds.NewAssumeRoleProvider(stsClient, cfg.RoleARN, func(o *stscreds.AssumeRoleOptions) {
		if cfg.ExternalID != "" {
			o.ExternalID = &cfg.ExternalID
		}
		o.RoleSessionName = "routepay-engine"
		o.Duration = duration
	})
	return aws.NewCredentialsCache(provider)
}

// DynamoDB returns the shared DynamoDB client.
func (s *Session) DynamoDB() (*dynamodb.Client, error) {
	if s == nil || s.dynamo == nil {
		return nil, fmt.Errorf("DynamoDB client is nil")
	}
	return s.dynamo, nil
}

// KMS returns a KMS client on the session's credentials.
func (s *Session) KMS() *kms.Client {
	return kms.NewFromConfig(s.awsConfig)
}

// S3 returns an S3 client on the session's credentials.
func (s *Session) S3() *s3.Client {
	return s3.NewFromConfig(s.awsConfig, func(o *s3.Options) {
		if s.config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.config.Endpoint)
			o.UsePathStyle = true
		}
	})
}

// Config returns the session configuration.
func (s *Session) Config() *Config {
	return s.config
}

// AWSConfig returns the loaded AWS configuration.
func (s *Session) AWSConfig() aws.Config {
	return s.awsConfig
}
