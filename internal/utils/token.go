package utils // package utils provides helpers for session tokens, ids and password hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 digest for session ids
	"encoding/base32"
	"encoding/hex" // hex encoding of digests
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// SessionTokenBytes is the entropy of a session token handed to clients.
	SessionTokenBytes = 20
	// UserIDLength is the length of generated user ids.
	UserIDLength = 16

	userIDAlphabet = "abcdefghijklmnopqrstuvwxyz234567"
)

// base32 without padding, lower-cased after encoding so tokens are URL safe.
var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewSessionToken returns a high-entropy, URL-safe random token.  The raw
// token is only ever returned to the client; the server keeps its digest.
func NewSessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToLower(tokenEncoding.EncodeToString(buf)), nil
}

// SessionID returns the SHA-256 hex digest of a raw session token.  The
// digest is the lookup key of the session, so a token is valid exactly when
// a session with this id exists.
func SessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewUserID returns a random lower-case user id.
func NewUserID() (string, error) {
	return gonanoid.Generate(userIDAlphabet, UserIDLength)
}

// NewEntityID returns a random UUID string for posts and assets.
func NewEntityID() string {
	return uuid.NewString()
}
