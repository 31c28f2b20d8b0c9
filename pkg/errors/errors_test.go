package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorWrapsSentinel(t *testing.T) {
	err := Newf(ErrAuthorNotFound, 404, "author %d", 42)
	assert.ErrorIs(t, err, ErrAuthorNotFound)
	assert.Equal(t, "author not found: author 42", err.Error())
	assert.Equal(t, 404, HTTPStatusCode(err))
}

func TestHTTPStatusCodeSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrAuthorNotFound, http.StatusNotFound},
		{ErrBookNotFound, http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrNotCached, http.StatusBadRequest},
		{ErrTimeout, http.StatusServiceUnavailable},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusCode(tc.err), tc.err.Error())
	}
}

func TestHTTPStatusCodeWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("loading: %w", ErrBookNotFound)
	assert.Equal(t, http.StatusNotFound, HTTPStatusCode(err))
}

func TestHTTPStatusCodeAppErrorWins(t *testing.T) {
	// An explicit AppError status overrides the sentinel mapping.
	err := fmt.Errorf("outer: %w", New(ErrNotCached, 422, "book 9"))
	assert.Equal(t, 422, HTTPStatusCode(err))
}
