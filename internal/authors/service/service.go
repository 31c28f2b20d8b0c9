// Package service holds the domain orchestration of the authors service:
// business validations, primary-entity persistence, and event publication
// after each committed change.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aitormf/books-server/internal/authors/domain"
	"github.com/aitormf/books-server/internal/authors/repository"
	apperrors "github.com/aitormf/books-server/pkg/errors"
	"github.com/aitormf/books-server/pkg/logger"
)

// Topics published by the authors service. The topic name is the event type.
const (
	TopicAuthorCreated      = "author.created"
	TopicAuthorUpdated      = "author.updated"
	TopicAuthorDeleted      = "author.deleted"
	TopicAuthorBookLinked   = "author_book.linked"
	TopicAuthorBookUnlinked = "author_book.unlinked"
)

// Publisher is the outbound event capability. The HTTP-side service holds
// one; the event-side service is constructed without it.
type Publisher interface {
	Publish(ctx context.Context, topic string, data map[string]any, correlationID string) error
}

// AuthorService orchestrates author writes and the book projection.
type AuthorService struct {
	authors   repository.AuthorRepository
	books     repository.BooksCache
	publisher Publisher
	logger    *slog.Logger
}

// New creates the request-path service, which publishes an event after every
// committed primary-record change.
func New(authors repository.AuthorRepository, books repository.BooksCache, pub Publisher) *AuthorService {
	return &AuthorService{
		authors:   authors,
		books:     books,
		publisher: pub,
		logger:    slog.Default().With("component", "author-service"),
	}
}

// NewEventSide creates the consumer-path service. It has no publisher, so
// applying a consumed event can never emit a new one: the absent capability,
// not a convention, breaks the publish-consume-publish cycle.
func NewEventSide(authors repository.AuthorRepository, books repository.BooksCache) *AuthorService {
	return New(authors, books, nil)
}

func (s *AuthorService) publish(ctx context.Context, topic string, data map[string]any) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, topic, data, logger.CorrelationID(ctx))
}

func validateAuthor(author domain.Author) error {
	if len(strings.TrimSpace(author.Name)) < 2 {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "author name must be at least 2 characters")
	}
	return nil
}

func authorEventData(a domain.Author) map[string]any {
	data := map[string]any{
		"author_id": a.ID,
		"name":      a.Name,
	}
	if a.BirthDate != nil {
		data["birth_date"] = a.BirthDate.Format("2006-01-02")
	}
	if a.Nationality != nil {
		data["nationality"] = *a.Nationality
	}
	return data
}

// CreateAuthor validates and persists a new author, then publishes
// author.created. A publish failure is returned to the caller, which owns
// the decision between failing the request and proceeding degraded.
func (s *AuthorService) CreateAuthor(ctx context.Context, author domain.Author) (domain.Author, error) {
	if err := validateAuthor(author); err != nil {
		return domain.Author{}, err
	}
	created, err := s.authors.Create(ctx, author)
	if err != nil {
		return domain.Author{}, err
	}
	if err := s.publish(ctx, TopicAuthorCreated, authorEventData(created)); err != nil {
		return created, err
	}
	return created, nil
}

// GetAuthor returns the author with their linked books joined from the local
// cache.
func (s *AuthorService) GetAuthor(ctx context.Context, id int64) (domain.Author, error) {
	author, err := s.authors.GetByID(ctx, id)
	if err != nil {
		return domain.Author{}, err
	}
	books, err := s.authors.BooksByAuthor(ctx, id)
	if err != nil {
		return domain.Author{}, err
	}
	author.Books = books
	return author, nil
}

// ListAuthors returns a page of authors.
func (s *AuthorService) ListAuthors(ctx context.Context, limit, offset int) ([]domain.Author, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.authors.List(ctx, limit, offset)
}

// UpdateAuthor validates and persists the change, then publishes
// author.updated.
func (s *AuthorService) UpdateAuthor(ctx context.Context, id int64, author domain.Author) (domain.Author, error) {
	if err := validateAuthor(author); err != nil {
		return domain.Author{}, err
	}
	updated, err := s.authors.Update(ctx, id, author)
	if err != nil {
		return domain.Author{}, err
	}
	if err := s.publish(ctx, TopicAuthorUpdated, authorEventData(updated)); err != nil {
		return updated, err
	}
	return updated, nil
}

// DeleteAuthor removes the author and publishes author.deleted with just the
// identifying key.
func (s *AuthorService) DeleteAuthor(ctx context.Context, id int64) error {
	if err := s.authors.Delete(ctx, id); err != nil {
		return err
	}
	return s.publish(ctx, TopicAuthorDeleted, map[string]any{"author_id": id})
}

// AssignBooks links books to an author after validating every id against the
// local cache, then publishes one author_book.linked event per link.
func (s *AuthorService) AssignBooks(ctx context.Context, authorID int64, bookIDs []int64) error {
	if _, err := s.authors.GetByID(ctx, authorID); err != nil {
		return err
	}
	for _, bookID := range bookIDs {
		_, ok, err := s.books.Get(ctx, bookID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.Newf(apperrors.ErrNotCached, 400, "book %d", bookID)
		}
	}
	if err := s.authors.LinkBooks(ctx, authorID, bookIDs); err != nil {
		return err
	}
	for _, bookID := range bookIDs {
		data := map[string]any{"author_id": authorID, "book_id": bookID}
		if err := s.publish(ctx, TopicAuthorBookLinked, data); err != nil {
			return err
		}
	}
	return nil
}

// UnassignBook removes one link and publishes author_book.unlinked when a
// row was actually removed.
func (s *AuthorService) UnassignBook(ctx context.Context, authorID, bookID int64) error {
	if _, err := s.authors.GetByID(ctx, authorID); err != nil {
		return err
	}
	removed, err := s.authors.UnlinkBook(ctx, authorID, bookID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	data := map[string]any{"author_id": authorID, "book_id": bookID}
	return s.publish(ctx, TopicAuthorBookUnlinked, data)
}

// Sync methods below are invoked only from the event dispatch path, on an
// event-side service. They project foreign state and never publish.

// SyncBookToCache upserts the book projection.
func (s *AuthorService) SyncBookToCache(ctx context.Context, book domain.Book) error {
	return s.books.Upsert(ctx, book)
}

// RemoveBookEverywhere drops the book's link rows and its cached projection.
func (s *AuthorService) RemoveBookEverywhere(ctx context.Context, bookID int64) error {
	if err := s.authors.UnlinkBookFromAll(ctx, bookID); err != nil {
		return err
	}
	return s.books.Remove(ctx, bookID)
}

// SyncBookLinked mirrors a link created by the books service. The book may
// not be cached yet; the link row is stored regardless and the book's own
// event backfills the projection.
func (s *AuthorService) SyncBookLinked(ctx context.Context, authorID, bookID int64) error {
	return s.authors.LinkBooks(ctx, authorID, []int64{bookID})
}

// SyncBookUnlinked mirrors a link removal from the books service.
func (s *AuthorService) SyncBookUnlinked(ctx context.Context, authorID, bookID int64) error {
	_, err := s.authors.UnlinkBook(ctx, authorID, bookID)
	return err
}
