package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInt64Field(t *testing.T) {
	data := map[string]any{
		"book_id":  float64(42),
		"count":    int64(7),
		"small":    3,
		"fraction": 4.5,
		"title":    "not a number",
	}

	v, err := Int64Field(data, "book_id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = Int64Field(data, "count")
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = Int64Field(data, "small")
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = Int64Field(data, "fraction")
	assert.Error(t, err, "non-integer floats are rejected")

	_, err = Int64Field(data, "title")
	assert.Error(t, err)

	_, err = Int64Field(data, "missing")
	assert.Error(t, err)
}

func TestInt64FieldFallbackKeys(t *testing.T) {
	// Producers on other stacks may publish "id" instead of "book_id".
	v, err := Int64Field(map[string]any{"id": float64(9)}, "book_id", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(9), v)

	// The first present key wins.
	v, err = Int64Field(map[string]any{"book_id": float64(1), "id": float64(2)}, "book_id", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestStringField(t *testing.T) {
	data := map[string]any{"name": "Italo Calvino", "n": float64(1)}

	s, err := StringField(data, "name")
	require.NoError(t, err)
	assert.Equal(t, "Italo Calvino", s)

	_, err = StringField(data, "n")
	assert.Error(t, err)

	_, err = StringField(data, "missing")
	assert.Error(t, err)
}

func TestOptStringField(t *testing.T) {
	data := map[string]any{"isbn": "978-0-06-051275-4", "nilfield": nil}

	s := OptStringField(data, "isbn")
	require.NotNil(t, s)
	assert.Equal(t, "978-0-06-051275-4", *s)

	assert.Nil(t, OptStringField(data, "nilfield"))
	assert.Nil(t, OptStringField(data, "missing"))
}

func TestOptIntField(t *testing.T) {
	data := map[string]any{"publication_year": float64(1974), "bad": "1974", "frac": 19.74}

	y := OptIntField(data, "publication_year")
	require.NotNil(t, y)
	assert.Equal(t, 1974, *y)

	assert.Nil(t, OptIntField(data, "bad"))
	assert.Nil(t, OptIntField(data, "frac"))
	assert.Nil(t, OptIntField(data, "missing"))

	y = OptIntField(data, "year", "publication_year")
	require.NotNil(t, y)
	assert.Equal(t, 1974, *y)
}
