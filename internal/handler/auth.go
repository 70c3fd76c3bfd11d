package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/middleware"
	"github.com/iliyamo/anythought/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	auth         *service.AuthService
	secureCookie bool
}

func NewAuthHandler(auth *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookie: secureCookie}
}

// ----- DTOs -----

type signupReq struct {
	Username string  `json:"username" validate:"required,alphanum,min=3,max=32"`
	Name     string  `json:"name" validate:"required,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password string  `json:"password" validate:"required,min=8,max=128"`
}

type loginReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
}

// Signup creates an account.  It does not log the user in.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.auth.Signup(ctx, service.SignupInput{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

// Login opens a session.  The token is returned once, in the body and as
// an HTTP-only cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	token, sess, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return err
	}
	setSessionCookie(c, token, sess.ExpiresAt, h.secureCookie)
	return c.JSON(http.StatusOK, loginResp{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		UserID:    sess.UserID,
	})
}

// Signout ends the session the request was made with.
func (h *AuthHandler) Signout(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.auth.Signout(ctx, caller(c).ID, middleware.CurrentToken(c)); err != nil {
		return err
	}
	clearSessionCookie(c, h.secureCookie)
	return c.NoContent(http.StatusNoContent)
}

// SignoutAll ends every session of the caller, this one included.
func (h *AuthHandler) SignoutAll(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	n, err := h.auth.SignoutAll(ctx, caller(c).ID)
	if err != nil {
		return err
	}
	clearSessionCookie(c, h.secureCookie)
	return c.JSON(http.StatusOK, echo.Map{"revoked": n})
}

func setSessionCookie(c echo.Context, token string, expires time.Time, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(c echo.Context, secure bool) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
