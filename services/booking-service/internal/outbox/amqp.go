package outbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSink publishes each event to a durable queue named after its event
// type through the default exchange.
type AMQPSink struct {
	url string

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewAMQPSink(url string) *AMQPSink {
	if url == "" {
		return nil
	}
	return &AMQPSink{url: url, declared: map[string]bool{}}
}

func (s *AMQPSink) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	s.resetLocked()
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	s.conn, s.ch = conn, ch
	s.declared = map[string]bool{}
	return ch, nil
}

func (s *AMQPSink) Publish(ctx context.Context, events []model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, err := s.channel()
	if err != nil {
		return err
	}
	for _, r := range events {
		if !s.declared[r.EventType] {
			if _, err := ch.QueueDeclare(r.EventType, true, false, false, false, nil); err != nil {
				s.resetLocked()
				return fmt.Errorf("rabbitmq declare %s: %w", r.EventType, err)
			}
			s.declared[r.EventType] = true
		}
		err := ch.PublishWithContext(ctx, "", r.EventType, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    r.EventID,
			Type:         r.EventType,
			Timestamp:    r.CreatedAt,
			Headers: amqp.Table{
				"aggregate_type": r.AggregateType,
				"aggregate_id":   r.AggregateID,
				"traceparent":    r.Traceparent,
				"tracestate":     r.Tracestate,
			},
			Body: r.Payload,
		})
		if err != nil {
			s.resetLocked()
			return fmt.Errorf("rabbitmq publish %s: %w", r.EventID, err)
		}
	}
	return nil
}

func (s *AMQPSink) resetLocked() {
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	return nil
}
