package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitormf/books-server/internal/authors/domain"
	apperrors "github.com/aitormf/books-server/pkg/errors"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestAuthorCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthorRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO authors")).
		WithArgs("Ursula K. Le Guin", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))

	created, err := repo.Create(context.Background(), domain.Author{Name: "Ursula K. Le Guin"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "Ursula K. Le Guin", created.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthorRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, birth_date, nationality, created_at, updated_at")).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuthorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorDeleteCascadesLinks(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthorRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM authors WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM author_books WHERE author_id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.Delete(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthorDeleteNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthorRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM authors WHERE id = $1")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), 9)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAuthorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkBooksIgnoresExistingLinks(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthorRepository(db)

	stmt := regexp.QuoteMeta("ON CONFLICT (author_id, book_id) DO NOTHING")
	mock.ExpectExec(stmt).WithArgs(int64(1), int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	// Second link already exists; the insert affects nothing but still succeeds.
	mock.ExpectExec(stmt).WithArgs(int64(1), int64(6)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.LinkBooks(context.Background(), 1, []int64{5, 6}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnlinkBookReportsRemoval(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthorRepository(db)

	stmt := regexp.QuoteMeta("DELETE FROM author_books WHERE author_id = $1 AND book_id = $2")
	mock.ExpectExec(stmt).WithArgs(int64(1), int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(stmt).WithArgs(int64(1), int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.UnlinkBook(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.UnlinkBook(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.False(t, removed, "absent links are not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBooksByAuthorJoinsCache(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuthorRepository(db)

	isbn := "978-0-06-051275-4"
	year := 1974
	mock.ExpectQuery(regexp.QuoteMeta("JOIN author_books ab ON ab.book_id = bc.book_id")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"book_id", "title", "isbn", "publication_year"}).
			AddRow(int64(5), "The Dispossessed", isbn, year))

	books, err := repo.BooksByAuthor(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, int64(5), books[0].ID)
	assert.Equal(t, "The Dispossessed", books[0].Title)
	require.NotNil(t, books[0].ISBN)
	assert.Equal(t, isbn, *books[0].ISBN)
	assert.NoError(t, mock.ExpectationsWereMet())
}
