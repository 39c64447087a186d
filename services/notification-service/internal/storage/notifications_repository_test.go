package storage

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/legalaid-connect/legalaid/libs/db"
)

func TestMigrationsEmbedded(t *testing.T) {
	migs, err := db.LoadMigrations(Migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, migs)
	assert.True(t, strings.Contains(migs[0].SQL, "inbox_events"))
}

func TestRepositoryRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	_, err = Migrator(pool).Up(ctx)
	require.NoError(t, err)

	repo := NewRepository(pool)
	recipient := time.Now().UnixNano() % 1_000_000_000
	require.NoError(t, repo.InsertNotification(ctx, Notification{
		RecipientRole: "lawyer", RecipientID: recipient, Message: "first", Type: "appointment_request",
	}))
	require.NoError(t, repo.InsertNotification(ctx, Notification{
		RecipientRole: "lawyer", RecipientID: recipient, Message: "second", Type: "appointment_cancelled",
	}))

	rows, err := repo.ListForRecipient(ctx, "lawyer", recipient, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "second", rows[0].Message)

	ok, err := repo.MarkRead(ctx, "citizen", recipient, rows[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.MarkRead(ctx, "lawyer", recipient, rows[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.InsertEmailDelivery(ctx, EmailDelivery{
		Kind: "appointment", Recipient: "a@example.org", Subject: "s", Status: "sent",
	}))
}
