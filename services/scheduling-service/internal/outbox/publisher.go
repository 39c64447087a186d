package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
	retention time.Duration
	lastPurge time.Time
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
	// Retention is how long relayed rows are kept. Zero keeps them forever.
	Retention time.Duration
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
		retention: cfg.Retention,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return
	}

	writer := kafkax.NewWriter(p.brokers)
	defer writer.Close()

	delay := p.pollEvery
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		n, err := p.PublishBatch(ctx, writer)
		switch {
		case err != nil:
			delay = nextDelay(delay, p.pollEvery)
			p.logger.Error("outbox publish failed", "err", err, "retry_in", delay)
		case n == p.batchSize:
			// Backlog: go again immediately.
			delay = 0
		default:
			delay = p.pollEvery
			if n > 0 {
				p.logger.Debug("outbox batch published", "count", n)
			}
		}
		p.purge(ctx)
		timer.Reset(delay)
	}
}

// purge drops relayed rows past retention, at most hourly.
func (p *Publisher) purge(ctx context.Context) {
	if p.retention <= 0 || time.Since(p.lastPurge) < time.Hour {
		return
	}
	p.lastPurge = time.Now()
	n, err := p.repo.PurgePublished(ctx, p.pool, time.Now().Add(-p.retention))
	if err != nil {
		p.logger.Error("outbox purge failed", "err", err)
		return
	}
	if n > 0 {
		p.logger.Info("outbox purged", "rows", n)
	}
}

// nextDelay doubles the wait after a failure, capped at maxBackoff.
func nextDelay(cur, base time.Duration) time.Duration {
	if cur < base {
		cur = base
	}
	return min(cur*2, maxBackoff)
}

const maxBackoff = 30 * time.Second

// PublishBatch relays one batch of unpublished rows and marks them published
// in the same transaction. It returns the number of rows relayed.
func (p *Publisher) PublishBatch(ctx context.Context, writer MessageWriter) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, Message(ctx, r))
		ids = append(ids, r.ID)
	}
	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}

// Message builds the Kafka message for a stored record, restoring the trace
// context captured at insert time.
func Message(ctx context.Context, r Record) kafka.Message {
	msg := kafka.Message{
		Topic:   r.EventType,
		Key:     []byte(r.AggregateID),
		Value:   r.Payload,
		Headers: kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}.Headers(),
	}
	kafkax.InjectTrace(r.Trace.Restore(ctx), &msg)
	return msg
}
