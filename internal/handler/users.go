package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/service"
)

type UserHandler struct {
	users        *service.UserService
	auth         *service.AuthService
	secureCookie bool
}

func NewUserHandler(users *service.UserService, auth *service.AuthService, secureCookie bool) *UserHandler {
	return &UserHandler{users: users, auth: auth, secureCookie: secureCookie}
}

type editProfileReq struct {
	Username *string `json:"username" validate:"omitempty,alphanum,min=3,max=32"`
	Name     *string `json:"name" validate:"omitempty,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Image    *string `json:"image" validate:"omitempty,url"`
}

// Find returns one user by ?id or ?username, or every user when neither
// is given.
func (h *UserHandler) Find(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if id := c.QueryParam("id"); id != "" {
		u, err := h.users.Get(ctx, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, u)
	}
	if name := c.QueryParam("username"); name != "" {
		u, err := h.users.GetByUsername(ctx, name)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, u)
	}
	all, err := h.users.List(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, all)
}

func (h *UserHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, caller(c))
}

func (h *UserHandler) Edit(c echo.Context) error {
	var req editProfileReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.users.UpdateProfile(ctx, caller(c).ID, service.ProfileUpdate{
		Username: req.Username,
		Name:     req.Name,
		Email:    req.Email,
		Image:    req.Image,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// DeleteMe removes the caller's account and signs out all of its sessions.
func (h *UserHandler) DeleteMe(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	n, err := h.auth.DeleteAccount(ctx, caller(c).ID)
	if err != nil {
		return err
	}
	clearSessionCookie(c, h.secureCookie)
	return c.JSON(http.StatusOK, echo.Map{"sessionsRevoked": n})
}
