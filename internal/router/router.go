// Package router registers the HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/handler"
)

// RegisterRoutes registers routes that need no session.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterAuth registers the authentication endpoints under /v1/auth.  All
// of them go through limit; signout routes also require a session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, session, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limit)
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/signout", a.Signout, session)
	g.POST("/signout-all", a.SignoutAll, session)
}
