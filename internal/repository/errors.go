// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// looking at driver errors. Repositories wrap them with context using
// errors.Wrapf, so callers match with errors.Is.
package repository

import "github.com/pkg/errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an operation cannot proceed because
// of the current state of a resource, such as attaching an asset that
// already belongs to another post. Handlers should translate this
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// Not-found errors; handlers translate them into HTTP 404.
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrFriendNotFound        = errors.New("friend not found")
	ErrFriendRequestNotFound = errors.New("friend request not found")
	ErrPostNotFound          = errors.New("post not found")
	ErrAssetNotFound         = errors.New("asset not found")
)

// Already-exists errors; handlers translate them into HTTP 409.
var (
	ErrUsernameTaken              = errors.New("username already taken")
	ErrFriendAlreadyExists        = errors.New("friend relationship already exists")
	ErrFriendRequestAlreadyExists = errors.New("friend request already exists")
)

// IsNotFound reports whether err is one of the repository not-found errors.
func IsNotFound(err error) bool {
	for _, target := range []error{ErrUserNotFound, ErrSessionNotFound, ErrFriendNotFound,
		ErrFriendRequestNotFound, ErrPostNotFound, ErrAssetNotFound} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAlreadyExists reports whether err is one of the already-exists errors.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrFriendAlreadyExists) ||
		errors.Is(err, ErrFriendRequestAlreadyExists)
}
