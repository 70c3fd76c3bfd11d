package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/service"
)

// CookieName is the cookie carrying the session token.
const CookieName = "x_at_auth_token"

// RequestValidator resolves a session token to its user, extending the
// session when it is close to expiry.
type RequestValidator interface {
	ValidateRequest(ctx context.Context, token string) (model.User, model.Session, error)
}

// SessionAuth authenticates the request from the session cookie or an
// "Authorization: Bearer" header.  Handlers behind it read the caller
// with CurrentUser.  Failures other than an invalid session are returned
// to the echo error handler.
func SessionAuth(v RequestValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := tokenFrom(c.Request())
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing session token"})
			}
			u, sess, err := v.ValidateRequest(c.Request().Context(), token)
			if errors.Is(err, service.ErrUnauthorized) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid session"})
			}
			if err != nil {
				return err
			}
			c.Set(userKey, u)
			c.Set(sessionKey, sess)
			c.Set(tokenKey, token)
			return next(c)
		}
	}
}

func tokenFrom(r *http.Request) string {
	if ck, err := r.Cookie(CookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
