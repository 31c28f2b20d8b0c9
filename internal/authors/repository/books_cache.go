package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aitormf/books-server/internal/authors/domain"
)

// PostgresBooksCache stores the local projection of books. Writes happen only
// from the event dispatch path; the HTTP path reads it for validations and
// joined responses.
type PostgresBooksCache struct {
	db Querier
}

// NewBooksCache creates a cache repository over db.
func NewBooksCache(db Querier) *PostgresBooksCache {
	return &PostgresBooksCache{db: db}
}

// Upsert inserts or unconditionally overwrites the cached row for the book.
// A single atomic insert-or-overwrite keyed by id: applying the same event
// twice leaves the same final state as applying it once.
func (c *PostgresBooksCache) Upsert(ctx context.Context, book domain.Book) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO books_cache (book_id, title, isbn, publication_year, synced_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (book_id) DO UPDATE SET
			title = EXCLUDED.title,
			isbn = EXCLUDED.isbn,
			publication_year = EXCLUDED.publication_year,
			synced_at = NOW()`,
		book.ID, book.Title, book.ISBN, book.PublicationYear)
	if err != nil {
		return fmt.Errorf("upserting cached book %d: %w", book.ID, err)
	}
	return nil
}

// Get returns the cached book and whether it exists.
func (c *PostgresBooksCache) Get(ctx context.Context, id int64) (domain.Book, bool, error) {
	var b domain.Book
	err := c.db.QueryRowContext(ctx,
		`SELECT book_id, title, isbn, publication_year FROM books_cache WHERE book_id = $1`, id,
	).Scan(&b.ID, &b.Title, &b.ISBN, &b.PublicationYear)
	if err == sql.ErrNoRows {
		return domain.Book{}, false, nil
	}
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("querying cached book %d: %w", id, err)
	}
	return b, true, nil
}

// Remove deletes the cached row if present. Removing an absent id succeeds,
// which keeps replays and delete-before-create sequences harmless.
func (c *PostgresBooksCache) Remove(ctx context.Context, id int64) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM books_cache WHERE book_id = $1`, id); err != nil {
		return fmt.Errorf("removing cached book %d: %w", id, err)
	}
	return nil
}
