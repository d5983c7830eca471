package outbox

import (
	"context"

	"github.com/md-rashed-zaman/primetable/libs/kafkax"
	otelx "github.com/md-rashed-zaman/primetable/libs/otel"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// KafkaSink writes each event to the topic named after its event type, keyed
// by aggregate id so one booking's events stay ordered.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers string) *KafkaSink {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		return nil
	}
	return &KafkaSink{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers:  list,
		Balancer: &kafka.Hash{},
	})}
}

func (s *KafkaSink) Publish(ctx context.Context, events []model.OutboxEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, r := range events {
		msgs = append(msgs, kafkaMessage(ctx, r))
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

func kafkaMessage(ctx context.Context, r model.OutboxEvent) kafka.Message {
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	msg := kafka.Message{
		Topic: r.EventType,
		Key:   []byte(r.AggregateID),
		Value: r.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(r.EventID)},
			{Key: "event_type", Value: []byte(r.EventType)},
			{Key: "aggregate_type", Value: []byte(r.AggregateType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
	return msg
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
