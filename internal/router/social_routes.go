package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/handler"
)

// SocialHandlers groups the handlers behind a session.
type SocialHandlers struct {
	Users   *handler.UserHandler
	Friends *handler.FriendHandler
	Posts   *handler.PostHandler
	Assets  *handler.AssetHandler
}

// RegisterSocial registers user, friend, post and asset endpoints under
// /v1.  Every route requires a session.
func RegisterSocial(e *echo.Echo, h SocialHandlers, session echo.MiddlewareFunc) {
	users := e.Group("/v1/users", session)
	users.GET("", h.Users.Find)
	users.GET("/me", h.Users.Me)
	users.POST("/edit", h.Users.Edit)
	users.DELETE("/me", h.Users.DeleteMe)

	friends := e.Group("/v1/friends", session)
	friends.POST("/requests", h.Friends.CreateRequest)
	friends.POST("/requests/engage", h.Friends.Engage)
	friends.DELETE("/requests", h.Friends.DeleteRequest)
	friends.GET("/requests", h.Friends.ListRequests)
	friends.GET("", h.Friends.List)
	friends.DELETE("", h.Friends.Remove)

	posts := e.Group("/v1/posts", session)
	posts.POST("", h.Posts.Create)
	posts.GET("", h.Posts.List)
	posts.GET("/feed", h.Posts.Feed)
	posts.GET("/:id", h.Posts.Get)
	posts.PATCH("/:id", h.Posts.Update)
	posts.DELETE("/:id", h.Posts.Delete)

	assets := e.Group("/v1/assets", session)
	assets.POST("", h.Assets.Create)
	assets.POST("/:id/complete", h.Assets.Complete)
}
