package utils

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordIterations = 10000
	passwordKeyLen     = 64
	saltBytes          = 64
)

// HashPassword derives a hex-encoded pbkdf2-sha512 key from plain and salt.
// The result depends only on its inputs.
func HashPassword(plain, salt string) string {
	key := pbkdf2.Key([]byte(plain), []byte(salt), passwordIterations, passwordKeyLen, sha512.New)
	return hex.EncodeToString(key)
}

// VerifyPassword reports whether plain hashes to hash under salt.
func VerifyPassword(hash, plain, salt string) bool {
	return subtle.ConstantTimeCompare([]byte(HashPassword(plain, salt)), []byte(hash)) == 1
}

// NewSalt returns a random hex salt.
func NewSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
