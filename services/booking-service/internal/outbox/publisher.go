package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/primetable/libs/metrics"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/primetable/services/booking-service/internal/storage"
)

// Sink delivers a batch of events to a broker. A batch either fully succeeds
// or is retried on the next poll, so consumers must dedupe on event_id.
type Sink interface {
	Publish(ctx context.Context, events []model.OutboxEvent) error
	Close() error
}

type Publisher struct {
	store     storage.Store
	sink      Sink
	logger    *slog.Logger
	metrics   *metrics.Engine
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(store storage.Store, sink Sink, m *metrics.Engine, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if m == nil {
		m = metrics.New("primetable")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:     store,
		sink:      sink,
		logger:    logger,
		metrics:   m,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run relays batches until ctx is done. The sink stays open; its owner closes
// it.
func (p *Publisher) Run(ctx context.Context) {
	if p.sink == nil {
		p.logger.Warn("outbox publisher disabled (no event sink configured)")
		return
	}

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.metrics.OutboxFailures.Inc()
				p.logger.Error("outbox publish failed", "err", err)
			}
		}
	}
}

// PublishBatch relays up to one batch and returns how many events it sent.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	sent := 0
	err := p.store.RunInTx(ctx, func(ctx context.Context, tx storage.Store) error {
		records, err := tx.ClaimOutbox(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := p.sink.Publish(ctx, records); err != nil {
			return err
		}
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		if err := tx.MarkOutboxPublished(ctx, ids, time.Now().UTC()); err != nil {
			return err
		}
		sent = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	p.metrics.OutboxPublished.Add(float64(sent))
	return sent, nil
}
