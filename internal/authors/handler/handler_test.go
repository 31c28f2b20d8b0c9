package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aitormf/books-server/internal/authors/domain"
	"github.com/aitormf/books-server/internal/authors/handler"
	"github.com/aitormf/books-server/internal/authors/service"
	apperrors "github.com/aitormf/books-server/pkg/errors"
	"github.com/aitormf/books-server/pkg/health"
)

type link struct{ authorID, bookID int64 }

type memRepo struct {
	nextID  int64
	authors map[int64]domain.Author
	links   map[link]bool
}

func newMemRepo() *memRepo {
	return &memRepo{authors: make(map[int64]domain.Author), links: make(map[link]bool)}
}

func (r *memRepo) Create(ctx context.Context, a domain.Author) (domain.Author, error) {
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	r.authors[a.ID] = a
	return a, nil
}
func (r *memRepo) GetByID(ctx context.Context, id int64) (domain.Author, error) {
	a, ok := r.authors[id]
	if !ok {
		return domain.Author{}, apperrors.Newf(apperrors.ErrAuthorNotFound, 404, "author %d", id)
	}
	return a, nil
}
func (r *memRepo) List(ctx context.Context, limit, offset int) ([]domain.Author, error) {
	out := make([]domain.Author, 0, len(r.authors))
	for _, a := range r.authors {
		out = append(out, a)
	}
	return out, nil
}
func (r *memRepo) Update(ctx context.Context, id int64, a domain.Author) (domain.Author, error) {
	if _, ok := r.authors[id]; !ok {
		return domain.Author{}, apperrors.Newf(apperrors.ErrAuthorNotFound, 404, "author %d", id)
	}
	a.ID = id
	r.authors[id] = a
	return a, nil
}
func (r *memRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.authors[id]; !ok {
		return apperrors.Newf(apperrors.ErrAuthorNotFound, 404, "author %d", id)
	}
	delete(r.authors, id)
	return nil
}
func (r *memRepo) LinkBooks(ctx context.Context, authorID int64, bookIDs []int64) error {
	for _, id := range bookIDs {
		r.links[link{authorID, id}] = true
	}
	return nil
}
func (r *memRepo) UnlinkBook(ctx context.Context, authorID, bookID int64) (bool, error) {
	l := link{authorID, bookID}
	if !r.links[l] {
		return false, nil
	}
	delete(r.links, l)
	return true, nil
}
func (r *memRepo) UnlinkBookFromAll(ctx context.Context, bookID int64) error { return nil }
func (r *memRepo) BooksByAuthor(ctx context.Context, authorID int64) ([]domain.Book, error) {
	books := make([]domain.Book, 0)
	for l := range r.links {
		if l.authorID == authorID {
			books = append(books, domain.Book{ID: l.bookID, Title: "cached"})
		}
	}
	return books, nil
}

type memCache struct{ books map[int64]domain.Book }

func newMemCache() *memCache { return &memCache{books: make(map[int64]domain.Book)} }

func (c *memCache) Upsert(ctx context.Context, b domain.Book) error {
	c.books[b.ID] = b
	return nil
}
func (c *memCache) Get(ctx context.Context, id int64) (domain.Book, bool, error) {
	b, ok := c.books[id]
	return b, ok, nil
}
func (c *memCache) Remove(ctx context.Context, id int64) error {
	delete(c.books, id)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, topic string, data map[string]any, correlationID string) error {
	return nil
}

func newServer(t *testing.T) (*httptest.Server, *memRepo, *memCache) {
	t.Helper()
	repo := newMemRepo()
	cache := newMemCache()
	svc := service.New(repo, cache, nopPublisher{})
	h := handler.New(svc, nil, health.NewChecker())
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, repo, cache
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateAuthorEndpoint(t *testing.T) {
	srv, repo, _ := newServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/authors",
		`{"name":"Ursula K. Le Guin","birth_date":"1929-10-21","nationality":"American"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Author
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, "Ursula K. Le Guin", created.Name)
	assert.Contains(t, repo.authors, int64(1))
}

func TestCreateAuthorBadRequests(t *testing.T) {
	srv, _, _ := newServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/authors", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/authors", `{"name":"Valid","birth_date":"21-10-1929"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/authors", `{"name":"X"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAuthorEndpoint(t *testing.T) {
	srv, repo, _ := newServer(t)
	created, err := repo.Create(context.Background(), domain.Author{Name: "Italo Calvino"})
	require.NoError(t, err)
	require.NoError(t, repo.LinkBooks(context.Background(), created.ID, []int64{7}))

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/authors/1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.Author
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Italo Calvino", got.Name)
	require.Len(t, got.Books, 1)
	assert.Equal(t, int64(7), got.Books[0].ID)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/authors/99", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/authors/zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteAuthorEndpoint(t *testing.T) {
	srv, repo, _ := newServer(t)
	_, err := repo.Create(context.Background(), domain.Author{Name: "Italo Calvino"})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/authors/1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/authors/1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAssignBooksEndpoint(t *testing.T) {
	srv, repo, cache := newServer(t)
	_, err := repo.Create(context.Background(), domain.Author{Name: "Ursula K. Le Guin"})
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/authors/1/books", `{"book_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The referenced book is not in the local projection yet.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/authors/1/books", `{"book_ids":[5]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.NoError(t, cache.Upsert(context.Background(), domain.Book{ID: 5, Title: "The Dispossessed"}))
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/authors/1/books", `{"book_ids":[5]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, repo.links[link{1, 5}])
}

func TestUnassignBookEndpoint(t *testing.T) {
	srv, repo, cache := newServer(t)
	_, err := repo.Create(context.Background(), domain.Author{Name: "Ursula K. Le Guin"})
	require.NoError(t, err)
	require.NoError(t, cache.Upsert(context.Background(), domain.Book{ID: 5, Title: "A"}))
	require.NoError(t, repo.LinkBooks(context.Background(), 1, []int64{5}))

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/authors/1/books/5", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, repo.links[link{1, 5}])

	// Removing an absent link is still a success.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/authors/1/books/5", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
