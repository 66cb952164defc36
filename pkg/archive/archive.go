// Package archive retains raw webhook payloads in S3 after processing
// settles, for dispute investigation and replay.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/routepay/routepay/pkg/payment"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one object per settled webhook event.
type S3Archiver struct {
	client s3API
	bucket string
}

// NewS3Archiver creates an archiver targeting the given bucket.
func NewS3Archiver(client s3API, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// Archive stores the event's raw payload. Keys shard by tenant, gateway and
// receipt date so lifecycle policies can expire by prefix.
func (a *S3Archiver) Archive(ctx context.Context, ev payment.WebhookEvent) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("archiver is not configured")
	}
	key := fmt.Sprintf("webhooks/%s/%s/%s/%s.json",
		ev.TenantID, ev.Gateway, ev.ReceivedAt.UTC().Format("2006/01/02"), ev.ID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(ev.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-id":       ev.ID,
			"event-type":     ev.EventType,
			"event-status":   string(ev.Status),
			"transaction-id": ev.TransactionID,
		},
	})
	if err != nil {
		return fmt.Errorf("archive event %s: %w", ev.ID, err)
	}
	return nil
}
