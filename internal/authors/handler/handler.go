// Package handler exposes the authors service's HTTP API. It is a thin
// collaborator over the domain service: routing, JSON codec, and status
// mapping live here, business rules do not.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aitormf/books-server/internal/authors/cache"
	"github.com/aitormf/books-server/internal/authors/domain"
	"github.com/aitormf/books-server/internal/authors/service"
	apperrors "github.com/aitormf/books-server/pkg/errors"
	"github.com/aitormf/books-server/pkg/health"
	"github.com/aitormf/books-server/pkg/logger"
)

type Handler struct {
	svc     *service.AuthorService
	views   *cache.ViewCache
	checker *health.Checker
	logger  *slog.Logger
}

// New creates a Handler. views may be nil when no Redis is configured.
func New(svc *service.AuthorService, views *cache.ViewCache, checker *health.Checker) *Handler {
	return &Handler{
		svc:     svc,
		views:   views,
		checker: checker,
		logger:  slog.Default().With("component", "authors-handler"),
	}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/authors", h.Create)
	mux.HandleFunc("GET /api/v1/authors", h.List)
	mux.HandleFunc("GET /api/v1/authors/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/authors/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/authors/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/authors/{id}/books", h.AssignBooks)
	mux.HandleFunc("DELETE /api/v1/authors/{id}/books/{bookID}", h.UnassignBook)
	mux.HandleFunc("GET /health", h.checker.LiveHandler())
	mux.HandleFunc("GET /ready", h.checker.ReadyHandler())
}

type authorRequest struct {
	Name        string  `json:"name"`
	BirthDate   *string `json:"birth_date"`
	Nationality *string `json:"nationality"`
}

func (req authorRequest) toDomain() (domain.Author, error) {
	author := domain.Author{Name: req.Name, Nationality: req.Nationality}
	if req.BirthDate != nil {
		t, err := time.Parse("2006-01-02", *req.BirthDate)
		if err != nil {
			return domain.Author{}, apperrors.New(apperrors.ErrInvalidInput, 400, "birth_date must be YYYY-MM-DD")
		}
		author.BirthDate = &t
	}
	return author, nil
}

type assignBooksRequest struct {
	BookIDs []int64 `json:"book_ids"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req authorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	author, err := req.toDomain()
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	created, err := h.svc.CreateAuthor(ctx, author)
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	authors, err := h.svc.ListAuthors(r.Context(), limit, offset)
	if err != nil {
		h.writeAppError(r.Context(), w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, authors)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var author domain.Author
	var err error
	if h.views != nil {
		author, err = h.views.GetOrLoad(ctx, id, func(ctx context.Context) (domain.Author, error) {
			return h.svc.GetAuthor(ctx, id)
		})
	} else {
		author, err = h.svc.GetAuthor(ctx, id)
	}
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, author)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req authorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	author, err := req.toDomain()
	if err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	updated, err := h.svc.UpdateAuthor(ctx, id, author)
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
	if err := h.svc.DeleteAuthor(ctx, id); err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.invalidate(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req assignBooksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.BookIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "book_ids must not be empty")
		return
	}
	if err := h.svc.AssignBooks(ctx, id, req.BookIDs); err != nil {
		h.writeAppError(ctx, w, err)
		return
	}
	h.invalidate(ctx, id)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "linked"})
}

func (h *Handler) UnassignBook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	bookID, ok := h.pathID(w, r, "bookID")
	if !ok {
		return
	}
	if err := h.svc.UnassignBook(ctx, id, bookID); err != nil {
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
