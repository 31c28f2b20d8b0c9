package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aitormf/books-server/internal/books/domain"
	apperrors "github.com/aitormf/books-server/pkg/errors"
)

// PostgresBookRepository persists books and their author links.
type PostgresBookRepository struct {
	db Querier
}

// NewBookRepository creates a repository over db, which may be a pool or a
// transaction.
func NewBookRepository(db Querier) *PostgresBookRepository {
	return &PostgresBookRepository{db: db}
}

func (r *PostgresBookRepository) Create(ctx context.Context, book domain.Book) (domain.Book, error) {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO books (title, isbn, publication_year)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		book.Title, book.ISBN, book.PublicationYear,
	).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return domain.Book{}, fmt.Errorf("inserting book: %w", err)
	}
	return book, nil
}

func (r *PostgresBookRepository) GetByID(ctx context.Context, id int64) (domain.Book, error) {
	var b domain.Book
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, isbn, publication_year, created_at, updated_at
		 FROM books WHERE id = $1`, id,
	).Scan(&b.ID, &b.Title, &b.ISBN, &b.PublicationYear, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Book{}, apperrors.Newf(apperrors.ErrBookNotFound, 404, "book %d", id)
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("querying book %d: %w", id, err)
	}
	return b, nil
}

func (r *PostgresBookRepository) List(ctx context.Context, limit, offset int) ([]domain.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, isbn, publication_year, created_at, updated_at
		 FROM books ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.ISBN, &b.PublicationYear, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning book row: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (r *PostgresBookRepository) Update(ctx context.Context, id int64, book domain.Book) (domain.Book, error) {
	err := r.db.QueryRowContext(ctx,
		`UPDATE books SET title = $1, isbn = $2, publication_year = $3, updated_at = NOW()
		 WHERE id = $4
		 RETURNING id, created_at, updated_at`,
		book.Title, book.ISBN, book.PublicationYear, id,
	).Scan(&book.ID, &book.CreatedAt, &book.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Book{}, apperrors.Newf(apperrors.ErrBookNotFound, 404, "book %d", id)
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("updating book %d: %w", id, err)
	}
	return book, nil
}

func (r *PostgresBookRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting book %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting book %d: %w", id, err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.ErrBookNotFound, 404, "book %d", id)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM book_authors WHERE book_id = $1`, id); err != nil {
		return fmt.Errorf("unlinking authors of book %d: %w", id, err)
	}
	return nil
}

// LinkAuthors inserts link rows, ignoring ones that already exist. The
// linked author does not need an authors_cache row yet: its own event will
// backfill it.
func (r *PostgresBookRepository) LinkAuthors(ctx context.Context, bookID int64, authorIDs []int64) error {
	for _, authorID := range authorIDs {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO book_authors (book_id, author_id) VALUES ($1, $2)
			 ON CONFLICT (book_id, author_id) DO NOTHING`,
			bookID, authorID)
		if err != nil {
			return fmt.Errorf("linking author %d to book %d: %w", authorID, bookID, err)
		}
	}
	return nil
}

// UnlinkAuthor removes one link row and reports whether a row was removed.
func (r *PostgresBookRepository) UnlinkAuthor(ctx context.Context, bookID, authorID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM book_authors WHERE book_id = $1 AND author_id = $2`,
		bookID, authorID)
	if err != nil {
		return false, fmt.Errorf("unlinking author %d from book %d: %w", authorID, bookID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlinking author %d from book %d: %w", authorID, bookID, err)
	}
	return affected > 0, nil
}

func (r *PostgresBookRepository) UnlinkAuthorFromAll(ctx context.Context, authorID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM book_authors WHERE author_id = $1`, authorID); err != nil {
		return fmt.Errorf("unlinking author %d from all books: %w", authorID, err)
	}
	return nil
}

func (r *PostgresBookRepository) AuthorsByBook(ctx context.Context, bookID int64) ([]domain.Author, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ac.author_id, ac.name, ac.nationality
		 FROM authors_cache ac
		 JOIN book_authors ba ON ba.author_id = ac.author_id
		 WHERE ba.book_id = $1
		 ORDER BY ac.author_id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("querying authors of book %d: %w", bookID, err)
	}
	defer rows.Close()

	authors := make([]domain.Author, 0)
	for rows.Next() {
		var a domain.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.Nationality); err != nil {
			return nil, fmt.Errorf("scanning cached author row: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}
