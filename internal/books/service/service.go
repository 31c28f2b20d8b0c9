// Package service holds the domain orchestration of the books service:
// business validations, primary-entity persistence, and event publication
// after each committed change.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aitormf/books-server/internal/books/domain"
	"github.com/aitormf/books-server/internal/books/repository"
	apperrors "github.com/aitormf/books-server/pkg/errors"
	"github.com/aitormf/books-server/pkg/logger"
)

// Topics published by the books service. The topic name is the event type.
const (
	TopicBookCreated        = "book.created"
	TopicBookUpdated        = "book.updated"
	TopicBookDeleted        = "book.deleted"
	TopicBookAuthorLinked   = "book_author.linked"
	TopicBookAuthorUnlinked = "book_author.unlinked"
)

// Publisher is the outbound event capability. The HTTP-side service holds
// one; the event-side service is constructed without it.
type Publisher interface {
	Publish(ctx context.Context, topic string, data map[string]any, correlationID string) error
}

// BookService orchestrates book writes and the author projection.
type BookService struct {
	books     repository.BookRepository
	authors   repository.AuthorsCache
	publisher Publisher
	logger    *slog.Logger
}

// New creates the request-path service, which publishes an event after every
// committed primary-record change.
func New(books repository.BookRepository, authors repository.AuthorsCache, pub Publisher) *BookService {
	return &BookService{
		books:     books,
		authors:   authors,
		publisher: pub,
		logger:    slog.Default().With("component", "book-service"),
	}
}

// NewEventSide creates the consumer-path service without publish capability,
// so applying a consumed event can never emit a new one.
func NewEventSide(books repository.BookRepository, authors repository.AuthorsCache) *BookService {
	return New(books, authors, nil)
}

func (s *BookService) publish(ctx context.Context, topic string, data map[string]any) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, topic, data, logger.CorrelationID(ctx))
}

func validateBook(book domain.Book) error {
	if strings.TrimSpace(book.Title) == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "book title must not be empty")
	}
	return nil
}

func bookEventData(b domain.Book) map[string]any {
	data := map[string]any{
		"book_id": b.ID,
		"title":   b.Title,
	}
	if b.ISBN != nil {
		data["isbn"] = *b.ISBN
	}
	if b.PublicationYear != nil {
		data["publication_year"] = *b.PublicationYear
	}
	return data
}

// CreateBook validates and persists a new book, then publishes book.created.
func (s *BookService) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	if err := validateBook(book); err != nil {
		return domain.Book{}, err
	}
	created, err := s.books.Create(ctx, book)
	if err != nil {
		return domain.Book{}, err
	}
	if err := s.publish(ctx, TopicBookCreated, bookEventData(created)); err != nil {
		return created, err
	}
	return created, nil
}

// GetBook returns the book with its linked authors joined from the local
// cache.
func (s *BookService) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	book, err := s.books.GetByID(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	authors, err := s.books.AuthorsByBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	book.Authors = authors
	return book, nil
}

// ListBooks returns a page of books.
func (s *BookService) ListBooks(ctx context.Context, limit, offset int) ([]domain.Book, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.books.List(ctx, limit, offset)
}

// UpdateBook validates and persists the change, then publishes book.updated.
func (s *BookService) UpdateBook(ctx context.Context, id int64, book domain.Book) (domain.Book, error) {
	if err := validateBook(book); err != nil {
		return domain.Book{}, err
	}
	updated, err := s.books.Update(ctx, id, book)
	if err != nil {
		return domain.Book{}, err
	}
	if err := s.publish(ctx, TopicBookUpdated, bookEventData(updated)); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteBook removes the book and publishes book.deleted with just the
// identifying key.
func (s *BookService) DeleteBook(ctx context.Context, id int64) error {
	if err := s.books.Delete(ctx, id); err != nil {
		return err
	}
	return s.publish(ctx, TopicBookDeleted, map[string]any{"book_id": id})
}

// AssignAuthors links authors to a book after validating every id against
// the local cache, then publishes one book_author.linked event per link.
func (s *BookService) AssignAuthors(ctx context.Context, bookID int64, authorIDs []int64) error {
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return err
	}
	for _, authorID := range authorIDs {
		_, ok, err := s.authors.Get(ctx, authorID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Newf(apperrors.ErrNotCached, 400, "author %d", authorID)
		}
	}
	if err := s.books.LinkAuthors(ctx, bookID, authorIDs); err != nil {
		return err
	}
	for _, authorID := range authorIDs {
		data := map[string]any{"book_id": bookID, "author_id": authorID}
		if err := s.publish(ctx, TopicBookAuthorLinked, data); err != nil {
			return err
		}
	}
	return nil
}

// UnassignAuthor removes one link and publishes book_author.unlinked when a
// row was actually removed.
func (s *BookService) UnassignAuthor(ctx context.Context, bookID, authorID int64) error {
	if _, err := s.books.GetByID(ctx, bookID); err != nil {
		return err
	}
	removed, err := s.books.UnlinkAuthor(ctx, bookID, authorID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	data := map[string]any{"book_id": bookID, "author_id": authorID}
	return s.publish(ctx, TopicBookAuthorUnlinked, data)
}

// Sync methods below are invoked only from the event dispatch path, on an
// event-side service. They project foreign state and never publish.

// SyncAuthorToCache upserts the author projection.
func (s *BookService) SyncAuthorToCache(ctx context.Context, author domain.Author) error {
	return s.authors.Upsert(ctx, author)
}

// RemoveAuthorEverywhere drops the author's link rows and their cached
// projection.
func (s *BookService) RemoveAuthorEverywhere(ctx context.Context, authorID int64) error {
	if err := s.books.UnlinkAuthorFromAll(ctx, authorID); err != nil {
		return err
	}
	return s.authors.Remove(ctx, authorID)
}

// SyncAuthorLinked mirrors a link created by the authors service. The author
// may not be cached yet; the link row is stored regardless.
func (s *BookService) SyncAuthorLinked(ctx context.Context, bookID, authorID int64) error {
	return s.books.LinkAuthors(ctx, bookID, []int64{authorID})
}

// SyncAuthorUnlinked mirrors a link removal from the authors service.
func (s *BookService) SyncAuthorUnlinked(ctx context.Context, bookID, authorID int64) error {
	_, err := s.books.UnlinkAuthor(ctx, bookID, authorID)
	return err
}
