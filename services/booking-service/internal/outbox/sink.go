package outbox

import "fmt"

// NewSink picks the broker by kind ("kafka" or "amqp"). A nil Sink with a nil
// error means no broker is configured and events stay in the outbox table.
func NewSink(kind, kafkaBrokers, amqpURL string) (Sink, error) {
	switch kind {
	case "", "kafka":
		if s := NewKafkaSink(kafkaBrokers); s != nil {
			return s, nil
		}
		return nil, nil
	case "amqp", "rabbitmq":
		if s := NewAMQPSink(amqpURL); s != nil {
			return s, nil
		}
		return nil, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown EVENT_SINK %q", kind)
	}
}
