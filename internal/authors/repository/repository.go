// Package repository implements PostgreSQL persistence for the authors
// service: the authors table it owns, the author_books link table, and the
// books_cache projection written by the event dispatch path.
package repository

import (
	"context"
	"database/sql"

	"github.com/aitormf/books-server/internal/authors/domain"
)

// Querier is satisfied by *sql.DB and *sql.Tx, letting the same repository
// run over the pool on the HTTP path and over a scoped transaction on the
// event dispatch path.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AuthorRepository is the persistence contract for the service's primary
// entity and its link records.
type AuthorRepository interface {
	Create(ctx context.Context, author domain.Author) (domain.Author, error)
	GetByID(ctx context.Context, id int64) (domain.Author, error)
	List(ctx context.Context, limit, offset int) ([]domain.Author, error)
	Update(ctx context.Context, id int64, author domain.Author) (domain.Author, error)
	Delete(ctx context.Context, id int64) error
	LinkBooks(ctx context.Context, authorID int64, bookIDs []int64) error
	UnlinkBook(ctx context.Context, authorID, bookID int64) (bool, error)
	UnlinkBookFromAll(ctx context.Context, bookID int64) error
	BooksByAuthor(ctx context.Context, authorID int64) ([]domain.Book, error)
}

// BooksCache is the idempotent-upsert boundary for the local projection of
// books. Upsert unconditionally overwrites, Remove tolerates absent rows, so
// replays and out-of-order deliveries never fail.
type BooksCache interface {
	Upsert(ctx context.Context, book domain.Book) error
	Get(ctx context.Context, id int64) (domain.Book, bool, error)
	Remove(ctx context.Context, id int64) error
}

// EnsureSchema creates the service's tables when they do not exist yet.
// Called once at startup.
func EnsureSchema(ctx context.Context, db Querier) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS authors (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			birth_date DATE,
			nationality VARCHAR(100),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS books_cache (
			book_id BIGINT PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			isbn VARCHAR(20),
			publication_year INT,
			synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS author_books (
			id BIGSERIAL PRIMARY KEY,
			author_id BIGINT NOT NULL,
			book_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (author_id, book_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
