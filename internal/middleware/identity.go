package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/model"
)

// Keys under which SessionAuth stores the authenticated request state.
const (
	userKey    = "user"
	sessionKey = "session"
	tokenKey   = "session_token"
)

// CurrentUser returns the user authenticated by SessionAuth.
func CurrentUser(c echo.Context) (model.User, bool) {
	u, ok := c.Get(userKey).(model.User)
	return u, ok
}

// CurrentSession returns the session the request was authenticated with.
func CurrentSession(c echo.Context) (model.Session, bool) {
	s, ok := c.Get(sessionKey).(model.Session)
	return s, ok
}

// CurrentToken returns the raw session token presented by the client.
func CurrentToken(c echo.Context) string {
	s, _ := c.Get(tokenKey).(string)
	return s
}

// userID returns the authenticated user's id, or "guest".
func userID(c echo.Context) string {
	if u, ok := CurrentUser(c); ok && u.ID != "" {
		return u.ID
	}
	return "guest"
}
