// Package domain defines the entities owned by the books service and its
// local projection of authors owned by the authors service.
package domain

import "time"

// Book is the primary entity of the books service.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	ISBN            *string   `json:"isbn,omitempty"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Authors         []Author  `json:"authors,omitempty"`
}

// Author is the read-only projection of an author owned by the authors
// service. It is written exclusively by the event dispatch path.
type Author struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Nationality *string `json:"nationality,omitempty"`
}
