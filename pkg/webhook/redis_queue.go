package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue backed by Redis lists, for deployments where webhook
// receipt and processing run on different replicas. Dequeue moves the id
// into a processing list so a crashed worker leaves the id recoverable;
// Ack removes it after successful handling.
type RedisQueue struct {
	client     *redis.Client
	pending    string
	processing string
}

// NewRedisQueue creates a queue on the given client and key prefix.
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "webhooks"
	}
	return &RedisQueue{
		client:     client,
		pending:    prefix + ":pending",
		processing: prefix + ":processing",
	}
}

// Enqueue implements Queue.
func (q *RedisQueue) Enqueue(ctx context.Context, eventID string) error {
	return q.client.LPush(ctx, q.pending, eventID).Err()
}

// Dequeue implements Queue. It polls with a short blocking pop so context
// cancellation is honored between attempts.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		id, err := q.client.BRPopLPush(ctx, q.pending, q.processing, time.Second).Result()
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
	}
}

// Ack implements Queue, removing the id from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, eventID string) error {
	return q.client.LRem(ctx, q.processing, 1, eventID).Err()
}

// Close implements Queue. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error { return nil }
