package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aitormf/books-server/internal/books/domain"
)

// PostgresAuthorsCache stores the local projection of authors. Writes happen
// only from the event dispatch path.
type PostgresAuthorsCache struct {
	db Querier
}

// NewAuthorsCache creates a cache repository over db.
func NewAuthorsCache(db Querier) *PostgresAuthorsCache {
	return &PostgresAuthorsCache{db: db}
}

// Upsert inserts or unconditionally overwrites the cached row for the
// author. Applying the same event twice leaves the same final state as
// applying it once.
func (c *PostgresAuthorsCache) Upsert(ctx context.Context, author domain.Author) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO authors_cache (author_id, name, nationality, synced_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (author_id) DO UPDATE SET
			name = EXCLUDED.name,
			nationality = EXCLUDED.nationality,
			synced_at = NOW()`,
		author.ID, author.Name, author.Nationality)
	if err != nil {
		return fmt.Errorf("upserting cached author %d: %w", author.ID, err)
	}
	return nil
}

// Get returns the cached author and whether it exists.
func (c *PostgresAuthorsCache) Get(ctx context.Context, id int64) (domain.Author, bool, error) {
	var a domain.Author
	err := c.db.QueryRowContext(ctx,
		`SELECT author_id, name, nationality FROM authors_cache WHERE author_id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Nationality)
	if err == sql.ErrNoRows {
		return domain.Author{}, false, nil
	}
	if err != nil {
		return domain.Author{}, false, fmt.Errorf("querying cached author %d: %w", id, err)
	}
	return a, true, nil
}

// Remove deletes the cached row if present. Removing an absent id succeeds.
func (c *PostgresAuthorsCache) Remove(ctx context.Context, id int64) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM authors_cache WHERE author_id = $1`, id); err != nil {
		return fmt.Errorf("removing cached author %d: %w", id, err)
	}
	return nil
}
