package model

import "time"

// Post is a row in `posts`.
type Post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Caption   *string   `json:"caption,omitempty"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostUpdate carries the mutable columns of a post.  A nil Likes keeps the
// current value.
type PostUpdate struct {
	ID      string
	Caption *string
	Likes   *int
}
