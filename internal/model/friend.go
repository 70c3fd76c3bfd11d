package model

import "time"

// FriendRelationship is a row in `friends`.  A pair is stored once, in the
// orientation (requester, requestee) of the request that created it.
type FriendRelationship struct {
	UserIDLeft  string    `json:"userIdLeft"`
	UserIDRight string    `json:"userIdRight"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Other returns the member of the pair that is not userID.
func (f FriendRelationship) Other(userID string) string {
	if f.UserIDLeft == userID {
		return f.UserIDRight
	}
	return f.UserIDLeft
}

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s FriendRequestStatus) Valid() bool {
	switch s {
	case FriendRequestPending, FriendRequestAccepted, FriendRequestRejected:
		return true
	}
	return false
}

// FriendRequest is a row in `friend_requests`, keyed by (requester, requestee).
type FriendRequest struct {
	Requester string              `json:"requester"`
	Requestee string              `json:"requestee"`
	Status    FriendRequestStatus `json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
}
