package middleware

import (
	"net/http"

	"github.com/aitormf/books-server/pkg/logger"
	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-ID"

// Correlation reads the X-Correlation-ID header (generating a fresh id when
// absent), stores it in the request context, and echoes it on the response.
// The id is carried through to every event published by the request.
func Correlation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(correlationHeader)
			if id == "" {
				id = uuid.NewString()
			}
			ctx := logger.WithCorrelationID(r.Context(), id)
			w.Header().Set(correlationHeader, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
