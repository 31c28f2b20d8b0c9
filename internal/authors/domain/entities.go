// Package domain defines the entities owned by the authors service and its
// local projection of books owned by the books service.
package domain

import "time"

// Author is the primary entity of the authors service. It is mutated only
// through this service's own write path, never by consumed events.
type Author struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	Nationality *string    `json:"nationality,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Books       []Book     `json:"books,omitempty"`
}

// Book is the read-only projection of a book owned by the books service,
// holding just the fields this service needs. It is written exclusively by
// the event dispatch path and is rebuildable by replaying the event history.
type Book struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	ISBN            *string `json:"isbn,omitempty"`
	PublicationYear *int    `json:"publication_year,omitempty"`
}
