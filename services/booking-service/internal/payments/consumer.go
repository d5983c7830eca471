package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

type Consumer struct {
	reader  *kafka.Reader
	handler *Handler
	logger  *slog.Logger
}

// NewConsumer returns nil when no brokers are configured.
func NewConsumer(handler *Handler, cfg Config, logger *slog.Logger) *Consumer {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 || len(cfg.Topics) == 0 {
		return nil
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "booking-service"
	}
	if logger == nil {
		logger = slog.Default()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, handler: handler, logger: logger}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}
		_ = c.Process(ctx, msg)
	}
}

// Process handles one message under a consumer span continued from the
// producer's trace headers.
func (c *Consumer) Process(ctx context.Context, msg kafka.Message) error {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if _, err := c.handler.Handle(ctxSpan, meta.EventID, meta.EventType, msg.Value); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		return err
	}
	return nil
}
