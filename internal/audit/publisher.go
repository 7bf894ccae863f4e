package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Broadcaster sends one outbox payload to the downstream bus.
type Broadcaster interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Publisher drains the audit outbox into Kafka. It is deliberately decoupled
// from the transactions that fill the outbox: broadcast is best-effort and a
// broker outage only delays delivery, it never fails a status update.
type Publisher struct {
	outbox      OutboxStore
	broadcaster Broadcaster
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
}

func NewPublisher(outbox OutboxStore, broadcaster Broadcaster, logger *slog.Logger) *Publisher {
	return &Publisher{
		outbox:      outbox,
		broadcaster: broadcaster,
		logger:      logger,
		interval:    time.Second,
		batchSize:   100,
	}
}

// Run polls the outbox until ctx is cancelled. An in-flight batch finishes
// before Run returns, so shutdown never abandons half-published work.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drainOnce(ctx); err != nil {
				p.logger.Warn("audit outbox drain failed", "error", err)
			}
		}
	}
}

func (p *Publisher) drainOnce(ctx context.Context) error {
	batch, err := p.outbox.NextBatch(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(batch))
	for _, entry := range batch {
		if err := p.broadcaster.Publish(ctx, []byte(entry.Key), entry.Payload); err != nil {
			// Stop at the first failure to preserve per-application ordering.
			p.logger.Warn("audit broadcast failed, will retry",
				"outbox_id", entry.ID,
				"error", err,
			)
			break
		}
		published = append(published, entry.ID)
	}

	return p.outbox.MarkPublished(ctx, published)
}
