package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/service"
)

type FriendHandler struct {
	friends *service.FriendService
}

func NewFriendHandler(friends *service.FriendService) *FriendHandler {
	return &FriendHandler{friends: friends}
}

type friendRequestReq struct {
	To string `json:"to" validate:"required"`
}

type engageReq struct {
	From   string `json:"from" validate:"required"`
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

type engageResp struct {
	Request model.FriendRequest       `json:"request"`
	Friend  *model.FriendRelationship `json:"friend,omitempty"`
}

// CreateRequest sends a friend request from the caller.
func (h *FriendHandler) CreateRequest(c echo.Context) error {
	var req friendRequestReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	fr, err := h.friends.CreateRequest(ctx, caller(c).ID, req.To)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, fr)
}

// Engage accepts or rejects a request addressed to the caller.
func (h *FriendHandler) Engage(c echo.Context) error {
	var req engageReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	key := repository.FriendRequestKey{Requester: req.From, Requestee: caller(c).ID}
	fr, friend, err := h.friends.EngageRequest(ctx, key, service.EngageAction(req.Action))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, engageResp{Request: fr, Friend: friend})
}

// DeleteRequest withdraws the caller's request to ?to.
func (h *FriendHandler) DeleteRequest(c echo.Context) error {
	to := c.QueryParam("to")
	if to == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to is required")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.friends.DeleteRequest(ctx, repository.FriendRequestKey{Requester: caller(c).ID, Requestee: to}); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListRequests lists requests ?mode=to (received, default) or from (sent),
// filtered by ?status (pending by default).
func (h *FriendHandler) ListRequests(c echo.Context) error {
	mode := service.RequestMode(c.QueryParam("mode"))
	if mode == "" {
		mode = service.RequestsTo
	}
	status := model.FriendRequestStatus(c.QueryParam("status"))
	if status == "" {
		status = model.FriendRequestPending
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.friends.ListRequests(ctx, caller(c).ID, mode, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(out))
}

func (h *FriendHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.friends.ListFriends(ctx, caller(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(out))
}

// Remove ends the friendship between the caller and ?user.
func (h *FriendHandler) Remove(c echo.Context) error {
	other := c.QueryParam("user")
	if other == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user is required")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.friends.RemoveFriend(ctx, caller(c).ID, other); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// nonNil makes empty lists encode as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
