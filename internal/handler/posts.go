package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/service"
)

type PostHandler struct {
	posts *service.PostService
}

func NewPostHandler(posts *service.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

type createPostReq struct {
	Caption *string `json:"caption" validate:"omitempty,max=2200"`
	AssetID string  `json:"assetId" validate:"required"`
}

type updatePostReq struct {
	Caption *string `json:"caption" validate:"omitempty,max=2200"`
	Likes   *int    `json:"likes" validate:"omitempty,min=0"`
}

func (h *PostHandler) Create(c echo.Context) error {
	var req createPostReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.posts.CreatePost(ctx, service.CreatePostInput{
		Author:  caller(c).ID,
		Caption: req.Caption,
		AssetID: req.AssetID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *PostHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.posts.GetPost(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PostHandler) Update(c echo.Context) error {
	var req updatePostReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.posts.UpdatePost(ctx, caller(c).ID, model.PostUpdate{
		ID:      c.Param("id"),
		Caption: req.Caption,
		Likes:   req.Likes,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PostHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.posts.DeletePost(ctx, caller(c).ID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// List returns the posts of ?author, or the caller's own.
func (h *PostHandler) List(c echo.Context) error {
	author := c.QueryParam("author")
	if author == "" {
		author = caller(c).ID
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.posts.ListPosts(ctx, author)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(out))
}

func (h *PostHandler) Feed(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	out, err := h.posts.Feed(ctx, caller(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(out))
}
