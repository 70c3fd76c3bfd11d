package model

import "time"

// Session is a login session.  ID is the SHA-256 digest of the token the
// client holds; the token itself is never stored.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }
