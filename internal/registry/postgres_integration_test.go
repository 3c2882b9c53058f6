package registry

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanatrack/safety-engine/internal/domain"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresContacts_ContactsFor(t *testing.T) {
	pool := getTestPool(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `DELETE FROM entity_contacts WHERE entity_id = 'it-e1'`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO contacts (id, name, priority, channel, address) VALUES
			('it-c1', 'Mom', 2, 'message', '+27-82-123-4567'),
			('it-c2', 'Police', 1, 'voice', '+27-10-201-0000')
		ON CONFLICT (id) DO NOTHING`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO entity_contacts (entity_id, contact_id, position) VALUES
			('it-e1', 'it-c1', 0),
			('it-e1', 'it-c2', 1)`)
	require.NoError(t, err)

	contacts := NewPostgresContacts(pool, time.Minute)
	got, err := contacts.ContactsFor(ctx, "it-e1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "it-c2", got[0].ID)
	assert.Equal(t, domain.ChannelVoice, got[0].Channel)

	// served from cache after the rows are gone
	_, err = pool.Exec(ctx, `DELETE FROM entity_contacts WHERE entity_id = 'it-e1'`)
	require.NoError(t, err)
	cached, err := contacts.ContactsFor(ctx, "it-e1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	contacts.Invalidate("it-e1")
	fresh, err := contacts.ContactsFor(ctx, "it-e1")
	require.NoError(t, err)
	assert.Empty(t, fresh)
}
