// Package outbox implements the transactional outbox: events are written in
// the same transaction as the state change and relayed to Kafka later.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	otelx "github.com/legalaid-connect/legalaid/libs/otel"
)

// Event is one pending message. EventType doubles as the Kafka topic and
// AggregateID as the partition key.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Execer is satisfied by *db.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository struct {
	newID func() string
}

func NewRepository() *Repository {
	return &Repository{newID: uuid.NewString}
}

// Insert stores evt with the caller's trace context and returns its event id.
func (r *Repository) Insert(ctx context.Context, ex Execer, evt Event) (string, error) {
	id := r.newID()
	tc := otelx.CaptureTrace(ctx)
	_, err := ex.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, tc.Parent, tc.State)
	if err != nil {
		return "", fmt.Errorf("insert outbox event %s: %w", evt.EventType, err)
	}
	return id, nil
}

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Trace         otelx.TraceContext
	CreatedAt     time.Time
}

// FetchUnpublished locks up to limit unpublished rows in id order. SKIP
// LOCKED lets several relays share the table.
func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rc Record
		err := row.Scan(&rc.ID, &rc.EventID, &rc.AggregateType, &rc.AggregateID, &rc.EventType,
			&rc.Payload, &rc.Trace.Parent, &rc.Trace.State, &rc.CreatedAt)
		return rc, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}

// PurgePublished deletes rows relayed before cutoff.
func (r *Repository) PurgePublished(ctx context.Context, ex Execer, cutoff time.Time) (int64, error) {
	tag, err := ex.Exec(ctx, `DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
