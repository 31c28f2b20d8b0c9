// Package cache provides a Redis-backed read-through cache of book-with-
// authors views, invalidated by both the HTTP write path and the event
// dispatch path.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aitormf/books-server/internal/books/domain"
	"github.com/aitormf/books-server/pkg/config"
	"github.com/aitormf/books-server/pkg/metrics"
	pkgredis "github.com/aitormf/books-server/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "books:view:"

// ViewCache caches rendered book views with a TTL.
type ViewCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a ViewCache. m may be nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *ViewCache {
	return &ViewCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "book-view-cache"),
	}
}

// GetOrLoad returns the cached view for id, loading and storing it on a
// miss. Concurrent misses for the same id are collapsed to a single load.
func (c *ViewCache) GetOrLoad(ctx context.Context, id int64, load func(ctx context.Context) (domain.Book, error)) (domain.Book, error) {
	key := c.key(id)
	if data, err := c.client.Get(ctx, key); err == nil {
		var book domain.Book
		if err := json.Unmarshal([]byte(data), &book); err == nil {
			if c.metrics != nil {
				c.metrics.ViewCacheHitsTotal.Inc()
			}
			return book, nil
		}
		c.logger.Error("view cache unmarshal failed", "key", key, "error", err)
	} else if !pkgredis.IsNilError(err) {
		c.logger.Error("view cache get failed", "key", key, "error", err)
	}
	if c.metrics != nil {
		c.metrics.ViewCacheMissesTotal.Inc()
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		book, err := load(ctx)
		if err != nil {
			return domain.Book{}, err
		}
		if data, err := json.Marshal(book); err == nil {
			if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
				c.logger.Error("view cache set failed", "key", key, "error", err)
			}
		}
		return book, nil
	})
	if err != nil {
		return domain.Book{}, err
	}
	return result.(domain.Book), nil
}

// Invalidate drops the cached view for one book.
func (c *ViewCache) Invalidate(ctx context.Context, id int64) {
	if err := c.client.Del(ctx, c.key(id)); err != nil {
		c.logger.Error("view cache invalidate failed", "book_id", id, "error", err)
	}
}

// InvalidateAll drops every cached book view.
func (c *ViewCache) InvalidateAll(ctx context.Context) {
	if _, err := c.client.FlushByPattern(ctx, keyPrefix+"*"); err != nil {
		c.logger.Error("view cache flush failed", "error", err)
	}
}

func (c *ViewCache) key(id int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, id)
}
