package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aitormf/books-server/internal/authors/domain"
	apperrors "github.com/aitormf/books-server/pkg/errors"
)

// PostgresAuthorRepository persists authors and their book links.
type PostgresAuthorRepository struct {
	db Querier
}

// NewAuthorRepository creates a repository over db, which may be a pool or a
// transaction.
func NewAuthorRepository(db Querier) *PostgresAuthorRepository {
	return &PostgresAuthorRepository{db: db}
}

func (r *PostgresAuthorRepository) Create(ctx context.Context, author domain.Author) (domain.Author, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO authors (name, birth_date, nationality)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		author.Name, author.BirthDate, author.Nationality,
	).Scan(&author.ID, &author.CreatedAt, &author.UpdatedAt)
	if err != nil {
		return domain.Author{}, fmt.Errorf("inserting author: %w", err)
	}
	return author, nil
}

func (r *PostgresAuthorRepository) GetByID(ctx context.Context, id int64) (domain.Author, error) {
	var a domain.Author
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, birth_date, nationality, created_at, updated_at
		 FROM authors WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.BirthDate, &a.Nationality, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Author{}, apperrors.Newf(apperrors.ErrAuthorNotFound, 404, "author %d", id)
	}
	if err != nil {
		return domain.Author{}, fmt.Errorf("querying author %d: %w", id, err)
	}
	return a, nil
}

func (r *PostgresAuthorRepository) List(ctx context.Context, limit, offset int) ([]domain.Author, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, birth_date, nationality, created_at, updated_at
		 FROM authors ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing authors: %w", err)
	}
	defer rows.Close()

	authors := make([]domain.Author, 0)
	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.BirthDate, &a.Nationality, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning author row: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

func (r *PostgresAuthorRepository) Update(ctx context.Context, id int64, author domain.Author) (domain.Author, error) {
	err := r.db.QueryRowContext(ctx,
		`UPDATE authors SET name = $1, birth_date = $2, nationality = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING id, created_at, updated_at`,
		author.Name, author.BirthDate, author.Nationality, id,
	).Scan(&author.ID, &author.CreatedAt, &author.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Author{}, apperrors.Newf(apperrors.ErrAuthorNotFound, 404, "author %d", id)
	}
	if err != nil {
		return domain.Author{}, fmt.Errorf("updating author %d: %w", id, err)
	}
	return author, nil
}

func (r *PostgresAuthorRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting author %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting author %d: %w", id, err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrAuthorNotFound, 404, "author %d", id)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM author_books WHERE author_id = $1`, id); err != nil {
		return fmt.Errorf("unlinking books of author %d: %w", id, err)
	}
	return nil
}

// LinkBooks inserts link rows, ignoring ones that already exist. The linked
// book does not need a books_cache row yet: its own event will backfill it.
func (r *PostgresAuthorRepository) LinkBooks(ctx context.Context, authorID int64, bookIDs []int64) error {
	for _, bookID := range bookIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO author_books (author_id, book_id) VALUES ($1, $2)
			 ON CONFLICT (author_id, book_id) DO NOTHING`,
			authorID, bookID)
		if err != nil {
			return fmt.Errorf("linking book %d to author %d: %w", bookID, authorID, err)
		}
	}
	return nil
}

// UnlinkBook removes one link row and reports whether a row was removed.
// Removing an absent link is not an error.
func (r *PostgresAuthorRepository) UnlinkBook(ctx context.Context, authorID, bookID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM author_books WHERE author_id = $1 AND book_id = $2`,
		authorID, bookID)
	if err != nil {
		return false, fmt.Errorf("unlinking book %d from author %d: %w", bookID, authorID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlinking book %d from author %d: %w", bookID, authorID, err)
	}
	return affected > 0, nil
}

func (r *PostgresAuthorRepository) UnlinkBookFromAll(ctx context.Context, bookID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM author_books WHERE book_id = $1`, bookID); err != nil {
		return fmt.Errorf("unlinking book %d from all authors: %w", bookID, err)
	}
	return nil
}

func (r *PostgresAuthorRepository) BooksByAuthor(ctx context.Context, authorID int64) ([]domain.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bc.book_id, bc.title, bc.isbn, bc.publication_year
		 FROM books_cache bc
		 JOIN author_books ab ON ab.book_id = bc.book_id
		 WHERE ab.author_id = $1
		 ORDER BY bc.book_id`, authorID)
	if err != nil {
		return nil, fmt.Errorf("querying books of author %d: %w", authorID, err)
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.ISBN, &b.PublicationYear); err != nil {
			return nil, fmt.Errorf("scanning cached book row: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}
