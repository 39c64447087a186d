package storage

import (
	"context"
	"embed"
	"time"

	"github.com/legalaid-connect/legalaid/libs/db"
)

//go:embed migrations/*.sql
var Migrations embed.FS

func Migrator(pool *db.Pool) *db.Migrator {
	return db.NewMigrator(pool, Migrations, "migrations").WithTable("notification_schema_migrations")
}

type Notification struct {
	ID            int64
	RecipientRole string
	RecipientID   int64
	Message       string
	Type          string
	ReferenceID   string
	Read          bool
	CreatedAt     time.Time
}

type EmailDelivery struct {
	Kind        string
	Recipient   string
	Subject     string
	ReferenceID string
	Status      string
	ErrorReason string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) InsertNotification(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (recipient_role, recipient_id, message, type, reference_id)
		VALUES ($1, $2, $3, $4, $5)
	`, n.RecipientRole, n.RecipientID, n.Message, n.Type, n.ReferenceID)
	return err
}

func (r *Repository) InsertEmailDelivery(ctx context.Context, d EmailDelivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO email_deliveries (kind, recipient, subject, reference_id, status, error_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, d.Kind, d.Recipient, d.Subject, d.ReferenceID, d.Status, d.ErrorReason)
	return err
}

// ListForRecipient returns the newest notifications of one recipient.
func (r *Repository) ListForRecipient(ctx context.Context, role string, id int64, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient_role, recipient_id, message, type, reference_id, is_read, created_at
		FROM notifications
		WHERE recipient_role = $1 AND recipient_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, role, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientRole, &n.RecipientID, &n.Message, &n.Type, &n.ReferenceID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags one notification of the recipient as read. It reports
// whether a row matched.
func (r *Repository) MarkRead(ctx context.Context, role string, recipientID, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE id = $1 AND recipient_role = $2 AND recipient_id = $3
	`, id, role, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
