// Package events wires the authors service's consumer side: handlers for the
// book events owned by the books service, each running against a
// publisher-less domain service in its own transaction.
package events

import (
	"context"
	"database/sql"

	"github.com/aitormf/books-server/internal/authors/domain"
	"github.com/aitormf/books-server/internal/authors/repository"
	"github.com/aitormf/books-server/internal/authors/service"
	"github.com/aitormf/books-server/pkg/kafka"
	"github.com/aitormf/books-server/pkg/postgres"
)

// Event types consumed by the authors service.
const (
	EventBookCreated        = "book.created"
	EventBookUpdated        = "book.updated"
	EventBookDeleted        = "book.deleted"
	EventBookAuthorLinked   = "book_author.linked"
	EventBookAuthorUnlinked = "book_author.unlinked"
)

// Registry is the handler-registration side of the consumer port.
type Registry interface {
	RegisterHandler(eventType string, handler kafka.HandlerFunc) error
}

// Runner executes fn with a publisher-less AuthorService. Each invocation
// gets a fresh persistence scope, so one failed dispatch never leaks state
// into the next.
type Runner func(ctx context.Context, fn func(svc *service.AuthorService) error) error

// NewTxRunner builds a Runner that binds the event-side service to a new
// transaction per dispatch.
func NewTxRunner(pg *postgres.Client) Runner {
	return func(ctx context.Context, fn func(svc *service.AuthorService) error) error {
		return pg.InTx(ctx, func(tx *sql.Tx) error {
			svc := service.NewEventSide(
				repository.NewAuthorRepository(tx),
				repository.NewBooksCache(tx),
			)
			return fn(svc)
		})
	}
}

// Invalidator drops stale view-cache entries after a projection change.
// Implementations must be safe to call with ids that were never cached.
type Invalidator interface {
	Invalidate(ctx context.Context, authorID int64)
	InvalidateAll(ctx context.Context)
}

// Register installs the book event handlers. views may be nil when no view
// cache is configured.
func Register(reg Registry, run Runner, views Invalidator) error {
	upsert := func(ctx context.Context, data map[string]any) error {
		book, err := bookFromData(data)
		if err != nil {
			return err
		}
		return run(ctx, func(svc *service.AuthorService) error {
			return svc.SyncBookToCache(ctx, book)
		})
	}

	handlers := map[string]kafka.HandlerFunc{
		EventBookCreated: upsert,
		EventBookUpdated: func(ctx context.Context, data map[string]any) error {
			if err := upsert(ctx, data); err != nil {
				return err
			}
			if views != nil {
				views.InvalidateAll(ctx)
			}
			return nil
		},
		EventBookDeleted: func(ctx context.Context, data map[string]any) error {
			bookID, err := kafka.Int64Field(data, "book_id", "id")
			if err != nil {
				return err
			}
			if err := run(ctx, func(svc *service.AuthorService) error {
				return svc.RemoveBookEverywhere(ctx, bookID)
			}); err != nil {
				return err
			}
			if views != nil {
				views.InvalidateAll(ctx)
			}
			return nil
		},
		EventBookAuthorLinked: func(ctx context.Context, data map[string]any) error {
			authorID, bookID, err := linkFromData(data)
			if err != nil {
				return err
			}
			if err := run(ctx, func(svc *service.AuthorService) error {
				return svc.SyncBookLinked(ctx, authorID, bookID)
			}); err != nil {
				return err
			}
			if views != nil {
				views.Invalidate(ctx, authorID)
			}
			return nil
		},
		EventBookAuthorUnlinked: func(ctx context.Context, data map[string]any) error {
			authorID, bookID, err := linkFromData(data)
			if err != nil {
				return err
			}
			if err := run(ctx, func(svc *service.AuthorService) error {
				return svc.SyncBookUnlinked(ctx, authorID, bookID)
			}); err != nil {
				return err
			}
			if views != nil {
				views.Invalidate(ctx, authorID)
			}
			return nil
		},
	}

	for eventType, handler := range handlers {
		if err := reg.RegisterHandler(eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

func bookFromData(data map[string]any) (domain.Book, error) {
	id, err := kafka.Int64Field(data, "book_id", "id")
	if err != nil {
		return domain.Book{}, err
	}
	title, err := kafka.StringField(data, "title")
	if err != nil {
		return domain.Book{}, err
	}
	return domain.Book{
		ID:              id,
		Title:           title,
		ISBN:            kafka.OptStringField(data, "isbn"),
		PublicationYear: kafka.OptIntField(data, "publication_year", "year"),
	}, nil
}

func linkFromData(data map[string]any) (authorID, bookID int64, err error) {
	authorID, err = kafka.Int64Field(data, "author_id")
	if err != nil {
		return 0, 0, err
	}
	bookID, err = kafka.Int64Field(data, "book_id")
	if err != nil {
		return 0, 0, err
	}
	return authorID, bookID, nil
}
