package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	gocache "github.com/patrickmn/go-cache"

	"sanatrack/safety-engine/internal/domain"
)

// PostgresContacts reads an entity's contacts from the contacts tables,
// with an in-process TTL cache in front of the database.
type PostgresContacts struct {
	pool  *pgxpool.Pool
	cache *gocache.Cache
}

func NewPostgresContacts(pool *pgxpool.Pool, ttl time.Duration) *PostgresContacts {
	return &PostgresContacts{
		pool:  pool,
		cache: gocache.New(ttl, 2*ttl),
	}
}

const contactsQuery = `
	SELECT c.id, c.name, c.priority, c.channel, c.address
	FROM entity_contacts ec
	JOIN contacts c ON c.id = ec.contact_id
	WHERE ec.entity_id = $1
	ORDER BY c.priority, ec.position
`

func (p *PostgresContacts) ContactsFor(ctx context.Context, entityID string) ([]*domain.ContactRef, error) {
	if cached, ok := p.cache.Get(entityID); ok {
		return cached.([]*domain.ContactRef), nil
	}

	rows, err := p.pool.Query(ctx, contactsQuery, entityID)
	if err != nil {
		return nil, fmt.Errorf("query contacts for %s: %w", entityID, err)
	}
	defer rows.Close()

	var out []*domain.ContactRef
	for rows.Next() {
		var c domain.ContactRef
		var channel string
		if err := rows.Scan(&c.ID, &c.Name, &c.Priority, &channel, &c.Address); err != nil {
			return nil, fmt.Errorf("scan contact for %s: %w", entityID, err)
		}
		c.Channel = domain.Channel(channel)
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read contacts for %s: %w", entityID, err)
	}

	p.cache.SetDefault(entityID, out)
	return out, nil
}

// Invalidate drops the cached contacts of an entity after an edit.
func (p *PostgresContacts) Invalidate(entityID string) {
	p.cache.Delete(entityID)
}
