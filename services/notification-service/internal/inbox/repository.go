// Package inbox remembers which events have been handled so redelivered
// Kafka messages are processed once.
package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/legalaid-connect/legalaid/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record claims eventID and reports false when it was already claimed.
// Events without an id cannot be de-duplicated and are always accepted.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return true, nil
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("record inbox event %s: %w", eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Prune forgets events received before cutoff and returns how many went.
// Kafka retention bounds how old a redelivery can be, so older rows are dead.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune inbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
