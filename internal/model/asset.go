package model

import "time"

type AssetStatus string

const (
	AssetProcessing AssetStatus = "processing"
	AssetActive     AssetStatus = "active"
)

// Asset is an uploaded media object, a row in `assets`.  PostID stays nil
// until the asset is attached to a post.
type Asset struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	PostID    *string     `json:"postId,omitempty"`
	URL       string      `json:"url"`
	Status    AssetStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}

// AssetUpdate carries the mutable columns of an asset.  Nil fields keep
// their current value.
type AssetUpdate struct {
	ID     string
	PostID *string
	URL    *string
	Status *AssetStatus
}
