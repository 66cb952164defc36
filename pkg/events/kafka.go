package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaWriter is the subset of kafka.Writer the emitter uses, extracted so
// tests can substitute a fake.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaEmitter publishes engine events to a Kafka topic, keyed by entity id
// so events for one transaction stay ordered within a partition.
type KafkaEmitter struct {
	writer  kafkaWriter
	log     *slog.Logger
	timeout time.Duration
}

// NewKafkaEmitter creates an emitter writing to the given brokers and topic.
func NewKafkaEmitter(brokers []string, topic string, log *slog.Logger) *KafkaEmitter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newKafkaEmitter(w, log)
}

func newKafkaEmitter(w kafkaWriter, log *slog.Logger) *KafkaEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &KafkaEmitter{
		writer:  w,
		log:     log.With(slog.String("component", "event-emitter")),
		timeout: 5 * time.Second,
	}
}

// Emit implements Emitter. Publish failures are logged, not surfaced:
// event delivery must never fail a payment.
func (e *KafkaEmitter) Emit(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("marshal event", "type", ev.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	err = e.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.EntityID),
		Value: body,
	})
	if err != nil {
		e.log.Error("publish event", "type", ev.Type, "entity", ev.EntityID, "error", err)
	}
}
