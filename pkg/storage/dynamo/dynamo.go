// Package dynamo implements the storage interfaces on DynamoDB. Records are
// stored as JSON documents alongside the key attributes DynamoDB needs for
// lookups, so schema evolution stays in the Go types.
package dynamo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/routepay/routepay/pkg/errors"
	"github.com/routepay/routepay/pkg/payment"
	"github.com/routepay/routepay/pkg/storage"
)

// correlationIndex serves GetByCorrelation lookups on the events table.
const correlationIndex = "correlation-index"

// API is the subset of the DynamoDB client the stores use.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// TransactionStore implements storage.TransactionStore on DynamoDB.
type TransactionStore struct {
	client API
	table  string
}

// NewTransactionStore creates a transaction store on the given table.
func NewTransactionStore(client API, table string) *TransactionStore {
	return &TransactionStore{client: client, table: table}
}

// Save implements storage.TransactionStore.
func (s *TransactionStore) Save(ctx context.Context, tx payment.Transaction) error {
	doc, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction %s: %w", tx.ID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"id":        &types.AttributeValueMemberS{Value: tx.ID},
			"tenant_id": &types.AttributeValueMemberS{Value: tx.TenantID},
			"status":    &types.AttributeValueMemberS{Value: string(tx.Status)},
			"doc":       &types.AttributeValueMemberS{Value: string(doc)},
		},
	})
	if err != nil {
		return errors.NewError("dynamo.tx.save", tx.ID, err)
	}
	return nil
}

// Get implements storage.TransactionStore.
func (s *TransactionStore) Get(ctx context.Context, id string) (payment.Transaction, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return payment.Transaction{}, errors.NewError("dynamo.tx.get", id, err)
	}
	if len(out.Item) == 0 {
		return payment.Transaction{}, errors.ErrTransactionNotFound
	}
	var tx payment.Transaction
	if err := unmarshalDoc(out.Item, &tx); err != nil {
		return payment.Transaction{}, errors.NewError("dynamo.tx.get", id, err)
	}
	return tx, nil
}

// WebhookEventStore implements storage.WebhookEventStore on DynamoDB. The
// table needs a GSI named correlation-index keyed on gateway_correlation for
// the idempotency lookup.
type WebhookEventStore struct {
	client API
	table  string
}

// NewWebhookEventStore creates an event store on the given table.
func NewWebhookEventStore(client API, table string) *WebhookEventStore {
	return &WebhookEventStore{client: client, table: table}
}

// Save implements storage.WebhookEventStore.
func (s *WebhookEventStore) Save(ctx context.Context, ev payment.WebhookEvent) error {
	doc, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	item := map[string]types.AttributeValue{
		"id":     &types.AttributeValueMemberS{Value: ev.ID},
		"status": &types.AttributeValueMemberS{Value: string(ev.Status)},
		"doc":    &types.AttributeValueMemberS{Value: string(doc)},
	}
	if ev.CorrelationID != "" {
		item["gateway_correlation"] = &types.AttributeValueMemberS{
			Value: correlationKey(ev.Gateway, ev.CorrelationID),
		}
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return errors.NewError("dynamo.event.save", ev.ID, err)
	}
	return nil
}

// Get implements storage.WebhookEventStore.
func (s *WebhookEventStore) Get(ctx context.Context, id string) (payment.WebhookEvent, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return payment.WebhookEvent{}, errors.NewError("dynamo.event.get", id, err)
	}
	if len(out.Item) == 0 {
		return payment.WebhookEvent{}, errors.ErrEventNotFound
	}
	var ev payment.WebhookEvent
	if err := unmarshalDoc(out.Item, &ev); err != nil {
		return payment.WebhookEvent{}, errors.NewError("dynamo.event.get", id, err)
	}
	return ev, nil
}

// GetByCorrelation implements storage.WebhookEventStore.
func (s *WebhookEventStore) GetByCorrelation(ctx context.Context, gateway, correlationID string) (payment.WebhookEvent, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(correlationIndex),
		KeyConditionExpression: aws.String("gateway_correlation = :gc"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":gc": &types.AttributeValueMemberS{Value: correlationKey(gateway, correlationID)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return payment.WebhookEvent{}, errors.NewError("dynamo.event.correlate", correlationID, err)
	}
	if len(out.Items) == 0 {
		return payment.WebhookEvent{}, errors.ErrEventNotFound
	}
	var ev payment.WebhookEvent
	if err := unmarshalDoc(out.Items[0], &ev); err != nil {
		return payment.WebhookEvent{}, errors.NewError("dynamo.event.correlate", correlationID, err)
	}
	return ev, nil
}

// MetricsStore implements storage.MetricsStore on DynamoDB. The table is
// keyed on pair (tenant#gateway) with bucket_start as the sort key.
type MetricsStore struct {
	client API
	table  string
}

// NewMetricsStore creates a metrics store on the given table.
func NewMetricsStore(client API, table string) *MetricsStore {
	return &MetricsStore{client: client, table: table}
}

// Get implements storage.MetricsStore. A bucket that does not exist yet
// reads as zero.
func (s *MetricsStore) Get(ctx context.Context, key storage.MetricsKey) (payment.PerformanceMetrics, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key:            metricsKeyAttrs(key),
	})
	if err != nil {
		return payment.PerformanceMetrics{}, errors.NewError("dynamo.metrics.get", key.Gateway, err)
	}
	if len(out.Item) == 0 {
		return payment.PerformanceMetrics{
			TenantID:    key.TenantID,
			Gateway:     key.Gateway,
			BucketStart: key.BucketStart,
			BucketEnd:   key.BucketStart.Add(time.Hour),
		}, nil
	}
	var m payment.PerformanceMetrics
	if err := unmarshalDoc(out.Item, &m); err != nil {
		return payment.PerformanceMetrics{}, errors.NewError("dynamo.metrics.get", key.Gateway, err)
	}
	return m, nil
}

// Save implements storage.MetricsStore.
func (s *MetricsStore) Save(ctx context.Context, key storage.MetricsKey, m payment.PerformanceMetrics) error {
	doc, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics for %s: %w", key.Gateway, err)
	}
	item := metricsKeyAttrs(key)
	item["doc"] = &types.AttributeValueMemberS{Value: string(doc)}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return errors.NewError("dynamo.metrics.save", key.Gateway, err)
	}
	return nil
}

// RuleStore implements storage.RuleStore on DynamoDB. The table is keyed on
// tenant_id with the rule id as the sort key.
type RuleStore struct {
	client API
	table  string
}

// NewRuleStore creates a rule store on the given table.
func NewRuleStore(client API, table string) *RuleStore {
	return &RuleStore{client: client, table: table}
}

// ListByTenant implements storage.RuleStore.
func (s *RuleStore) ListByTenant(ctx context.Context, tenantID string) ([]payment.RoutingRule, error) {
	var rules []payment.RoutingRule
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("tenant_id = :t"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberS{Value: tenantID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, errors.NewError("dynamo.rules.list", tenantID, err)
		}
		for _, item := range out.Items {
			var rule payment.RoutingRule
			if err := unmarshalDoc(item, &rule); err != nil {
				return nil, errors.NewError("dynamo.rules.list", tenantID, err)
			}
			rules = append(rules, rule)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sortRulesByPriority(rules)
	return rules, nil
}

// Save implements storage.RuleStore.
func (s *RuleStore) Save(ctx context.Context, rule payment.RoutingRule) error {
	doc, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule %s: %w", rule.ID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: rule.TenantID},
			"id":        &types.AttributeValueMemberS{Value: rule.ID},
			"doc":       &types.AttributeValueMemberS{Value: string(doc)},
		},
	})
	if err != nil {
		return errors.NewError("dynamo.rules.save", rule.ID, err)
	}
	return nil
}

func sortRulesByPriority(rules []payment.RoutingRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}

func correlationKey(gateway, correlationID string) string {
	return gateway + "#" + correlationID
}

func metricsKeyAttrs(key storage.MetricsKey) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pair":         &types.AttributeValueMemberS{Value: key.TenantID + "#" + key.Gateway},
		"bucket_start": &types.AttributeValueMemberS{Value: key.BucketStart.UTC().Format(time.RFC3339)},
	}
}

func unmarshalDoc(item map[string]types.AttributeValue, v any) error {
	docAV, ok := item["doc"].(*types.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("item has no doc attribute")
	}
	return json.Unmarshal([]byte(docAV.Value), v)
}
