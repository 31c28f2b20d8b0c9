// Package repository implements PostgreSQL persistence for the books
// service: the books table it owns, the book_authors link table, and the
// authors_cache projection written by the event dispatch path.
package repository

import (
	"context"
	"database/sql"

	"github.com/aitormf/books-server/internal/books/domain"
)

// Querier is satisfied by *sql.DB and *sql.Tx, letting the same repository
// run over the pool on the HTTP path and over a scoped transaction on the
// event dispatch path.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BookRepository is the persistence contract for the service's primary
// entity and its link records.
type BookRepository interface {
	Create(ctx context.Context, book domain.Book) (domain.Book, error)
	GetByID(ctx context.Context, id int64) (domain.Book, error)
	List(ctx context.Context, limit, offset int) ([]domain.Book, error)
	Update(ctx context.Context, id int64, book domain.Book) (domain.Book, error)
	Delete(ctx context.Context, id int64) error
	LinkAuthors(ctx context.Context, bookID int64, authorIDs []int64) error
	UnlinkAuthor(ctx context.Context, bookID, authorID int64) (bool, error)
	UnlinkAuthorFromAll(ctx context.Context, authorID int64) error
	AuthorsByBook(ctx context.Context, bookID int64) ([]domain.Author, error)
}

// AuthorsCache is the idempotent-upsert boundary for the local projection of
// authors.
type AuthorsCache interface {
	Upsert(ctx context.Context, author domain.Author) error
	Get(ctx context.Context, id int64) (domain.Author, bool, error)
	Remove(ctx context.Context, id int64) error
}

// EnsureSchema creates the service's tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db Querier) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			isbn VARCHAR(20) UNIQUE,
			publication_year INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS authors_cache (
			author_id BIGINT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			nationality VARCHAR(100),
			synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS book_authors (
			id BIGSERIAL PRIMARY KEY,
			book_id BIGINT NOT NULL,
			author_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (book_id, author_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
