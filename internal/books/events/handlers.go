// Package events wires the books service's consumer side: handlers for the
// author events owned by the authors service, each running against a
// publisher-less domain service in its own transaction.
package events

import (
	"context"
	"database/sql"

	"github.com/aitormf/books-server/internal/books/domain"
	"github.com/aitormf/books-server/internal/books/repository"
	"github.com/aitormf/books-server/internal/books/service"
	"github.com/aitormf/books-server/pkg/kafka"
	"github.com/aitormf/books-server/pkg/postgres"
)

// Event types consumed by the books service.
const (
	EventAuthorCreated      = "author.created"
	EventAuthorUpdated      = "author.updated"
	EventAuthorDeleted      = "author.deleted"
	EventAuthorBookLinked   = "author_book.linked"
	EventAuthorBookUnlinked = "author_book.unlinked"
)

// Registry is the handler-registration side of the consumer port.
type Registry interface {
	RegisterHandler(eventType string, handler kafka.HandlerFunc) error
}

// Runner executes fn with a publisher-less BookService bound to a fresh
// persistence scope.
type Runner func(ctx context.Context, fn func(svc *service.BookService) error) error

// NewTxRunner builds a Runner that binds the event-side service to a new
// transaction per dispatch.
func NewTxRunner(pg *postgres.Client) Runner {
	return func(ctx context.Context, fn func(svc *service.BookService) error) error {
		return pg.InTx(ctx, func(tx *sql.Tx) error {
			svc := service.NewEventSide(
				repository.NewBookRepository(tx),
				repository.NewAuthorsCache(tx),
			)
			return fn(svc)
		})
	}
}

// Invalidator drops stale view-cache entries after a projection change.
type Invalidator interface {
	Invalidate(ctx context.Context, bookID int64)
	InvalidateAll(ctx context.Context)
}

// Register installs the author event handlers. views may be nil when no view
// cache is configured.
func Register(reg Registry, run Runner, views Invalidator) error {
	upsert := func(ctx context.Context, data map[string]any) error {
		author, err := authorFromData(data)
		if err != nil {
			return err
		}
		return run(ctx, func(svc *service.BookService) error {
			return svc.SyncAuthorToCache(ctx, author)
		})
	}

	handlers := map[string]kafka.HandlerFunc{
		EventAuthorCreated: upsert,
		EventAuthorUpdated: func(ctx context.Context, data map[string]any) error {
			if err := upsert(ctx, data); err != nil {
				return err
			}
			if views != nil {
				views.InvalidateAll(ctx)
			}
			return nil
		},
		EventAuthorDeleted: func(ctx context.Context, data map[string]any) error {
			authorID, err := kafka.Int64Field(data, "author_id", "id")
			if err != nil {
				return err
			}
			if err := run(ctx, func(svc *service.BookService) error {
				return svc.RemoveAuthorEverywhere(ctx, authorID)
			}); err != nil {
				return err
			}
			if views != nil {
				views.InvalidateAll(ctx)
			}
			return nil
		},
		EventAuthorBookLinked: func(ctx context.Context, data map[string]any) error {
			bookID, authorID, err := linkFromData(data)
			if err != nil {
				return err
			}
			if err := run(ctx, func(svc *service.BookService) error {
				return svc.SyncAuthorLinked(ctx, bookID, authorID)
			}); err != nil {
				return err
			}
			if views != nil {
				views.Invalidate(ctx, bookID)
			}
			return nil
		},
		EventAuthorBookUnlinked: func(ctx context.Context, data map[string]any) error {
			bookID, authorID, err := linkFromData(data)
			if err != nil {
				return err
			}
			if err := run(ctx, func(svc *service.BookService) error {
				return svc.SyncAuthorUnlinked(ctx, bookID, authorID)
			}); err != nil {
				return err
			}
			if views != nil {
				views.Invalidate(ctx, bookID)
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

func authorFromData(data map[string]any) (domain.Author, error) {
	id, err := kafka.Int64Field(data, "author_id", "id")
	if err != nil {
		return domain.Author{}, err
	}
	name, err := kafka.StringField(data, "name")
	if err != nil {
		return domain.Author{}, err
	}
	return domain.Author{
		ID:          id,
		Name:        name,
		Nationality: kafka.OptStringField(data, "nationality"),
	}, nil
}

func linkFromData(data map[string]any) (bookID, authorID int64, err error) {
	bookID, err = kafka.Int64Field(data, "book_id")
	if err != nil {
		return 0, 0, err
	}
	authorID, err = kafka.Int64Field(data, "author_id")
	if err != nil {
		return 0, 0, err
	}
	return bookID, authorID, nil
}
