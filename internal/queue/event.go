// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them as activity.
package queue

import "time"

// Queue names; each event type has its own durable queue.
const (
	PostCreatedQueue       = "post.created"
	FriendshipCreatedQueue = "friendship.created"
	AccountDeletedQueue    = "account.deleted"
)

// Queues lists every queue the service publishes to.
var Queues = []string{PostCreatedQueue, FriendshipCreatedQueue, AccountDeletedQueue}

// PostCreatedEvent is published after a post and its asset link commit.
type PostCreatedEvent struct {
	PostID    string    `json:"post_id"`
	Author    string    `json:"author"`
	AssetID   string    `json:"asset_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FriendshipCreatedEvent is published when a friend request is accepted.
type FriendshipCreatedEvent struct {
	UserIDLeft  string    `json:"user_id_left"`
	UserIDRight string    `json:"user_id_right"`
	CreatedAt   time.Time `json:"created_at"`
}

// AccountDeletedEvent is published after a user row and all of its
// sessions are gone.
type AccountDeletedEvent struct {
	UserID          string    `json:"user_id"`
	SessionsRevoked int       `json:"sessions_revoked"`
	DeletedAt       time.Time `json:"deleted_at"`
}
