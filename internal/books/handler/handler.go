// Package handler exposes the books service's HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aitormf/books-server/internal/books/cache"
	"github.com/aitormf/books-server/internal/books/domain"
	"github.com/aitormf/books-server/internal/books/service"
	apperrors "github.com/aitormf/books-server/pkg/errors"
	"github.com/aitormf/books-server/pkg/health"
	"github.com/aitormf/books-server/pkg/logger"
)

type Handler struct {
	svc     *service.BookService
	views   *cache.ViewCache
	checker *health.Checker
	logger  *slog.Logger
}

// New creates a Handler. views may be nil when no Redis is configured.
func New(svc *service.BookService, views *cache.ViewCache, checker *health.Checker) *Handler {
	return &Handler{
		svc:     svc,
		views:   views,
		checker: checker,
		logger:  slog.Default().With("component", "books-handler"),
	}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/books", h.Create)
	mux.HandleFunc("GET /api/v1/books", h.List)
	mux.HandleFunc("GET /api/v1/books/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/books/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/books/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/books/{id}/authors", h.AssignAuthors)
	mux.HandleFunc("DELETE /api/v1/books/{id}/authors/{authorID}", h.UnassignAuthor)
	mux.HandleFunc("GET /health", h.checker.LiveHandler())
	mux.HandleFunc("GET /ready", h.checker.ReadyHandler())
}

type bookRequest struct {
	Title           string  `json:"title"`
	ISBN            *string `json:"isbn"`
	PublicationYear *int    `json:"publication_year"`
}

func (req bookRequest) toDomain() domain.Book {
	return domain.Book{
		Title:           req.Title,
		ISBN:            req.ISBN,
		PublicationYear: req.PublicationYear,
	}
}

type assignAuthorsRequest struct {
	AuthorIDs []int64 `json:"author_ids"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := h.svc.CreateBook(ctx, req.toDomain())
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	books, err := h.svc.ListBooks(r.Context(), limit, offset)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, books)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var book domain.Book
	var err error
	if h.views != nil {
		book, err = h.views.GetOrLoad(ctx, id, func(ctx context.Context) (domain.Book, error) {
			return h.svc.GetBook(ctx, id)
		})
	} else {
		book, err = h.svc.GetBook(ctx, id)
	}
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, book)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := h.svc.UpdateBook(ctx, id, req.toDomain())
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.invalidate(ctx, id)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(ctx, id); err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.invalidate(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignAuthors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req assignAuthorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.AuthorIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "author_ids must not be empty")
		return
	}
	if err := h.svc.AssignAuthors(ctx, id, req.AuthorIDs); err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.invalidate(ctx, id)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

func (h *Handler) UnassignAuthor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	authorID, ok := h.pathID(w, r, "authorID")
	if !ok {
		return
	}
	if err := h.svc.UnassignAuthor(ctx, id, authorID); err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.invalidate(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidate(ctx context.Context, id int64) {
	if h.views != nil {
		h.views.Invalidate(ctx, id)
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (h *Handler) writeAppError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= 500 {
		logger.FromContext(ctx).Error("request failed", "error", err)
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
