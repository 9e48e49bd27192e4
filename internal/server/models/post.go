package models

import "time"

// Post is a blog article. Content is the rendered HTML or markdown body
// from which media references are extracted.
type Post struct {
	ID        string
	AuthorID  string
	Title     string
	Content   string
	Summary   string
	Thumbnail string
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
