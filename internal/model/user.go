package model

import "time"

// User is the public view of a row in the `users` table.  Password and
// salt never leave the repository layer in this shape.
//
// Fields:
//
//	ID        – random lower-case identifier.
//	Username  – unique handle used to log in.
//	Name      – display name.
//	Email     – optional; nil when not provided.
//	Image     – avatar URL.
//	CreatedAt – timestamp of creation.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthUser is a full `users` row including credentials.  Only the auth
// service handles it.
type AuthUser struct {
	User
	Password string `json:"-"` // hex pbkdf2 digest
	Salt     string `json:"-"`
}
