// Package handlers exposes accounts, friendships, messages and files over HTTP.
package handlers

import (
	"github.com/gin-gonic/gin"

	"friendline/blob"
	"friendline/messaging"
	"friendline/middleware"
	"friendline/relation"
	"friendline/store"
	"friendline/utils"
)

type Deps struct {
	Users         store.UserStore
	Friends       *relation.Machine
	Messages      *messaging.Service
	Blobs         *blob.LocalStore
	Tokens        *utils.TokenManager
	SecureCookies bool
	// MaxBodyBytes caps request bodies; zero leaves them uncapped.
	MaxBodyBytes int64
}

type Handler struct {
	users         store.UserStore
	friends       *relation.Machine
	messages      *messaging.Service
	blobs         *blob.LocalStore
	tokens        *utils.TokenManager
	secureCookies bool
	maxBodyBytes  int64
}

func New(d Deps) *Handler {
	return &Handler{
		users:         d.Users,
		friends:       d.Friends,
		messages:      d.Messages,
		blobs:         d.Blobs,
		tokens:        d.Tokens,
		secureCookies: d.SecureCookies,
		maxBodyBytes:  d.MaxBodyBytes,
	}
}

// Register mounts every HTTP route on r.
func (h *Handler) Register(r gin.IRouter) {
	requireAuth := middleware.AuthMiddleware(h.tokens)
	if h.maxBodyBytes > 0 {
		r.Use(middleware.BodyLimit(h.maxBodyBytes))
	}

	r.GET("/health", h.Health)

	auth := r.Group("/api/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/check", requireAuth, h.Check)
		auth.PUT("/update-profile", requireAuth, h.UpdateProfile)
	}

	friends := r.Group("/api/friends")
	friends.Use(requireAuth)
	{
		friends.POST("/request", h.SendFriendRequest)
		friends.POST("/accept", h.AcceptFriendRequest)
		friends.POST("/decline", h.DeclineFriendRequest)
		friends.GET("/requests", h.GetFriendRequests)
		friends.GET("/sent-requests", h.GetSentFriendRequests)
		friends.GET("/list", h.GetFriends)
		friends.POST("/remove", h.RemoveFriend)
		friends.POST("/block", h.BlockUser)
		friends.POST("/unblock", h.UnblockUser)
		friends.POST("/users-by-ids", h.GetUsersByIDs)
		friends.GET("/all-users", h.GetAllUsers)
	}

	messages := r.Group("/api/message")
	messages.Use(requireAuth)
	{
		messages.GET("/users", h.GetSidebar)
		messages.GET("/:id", h.GetMessages)
		messages.POST("/:id", h.SendMessage)
		messages.POST("/send/:id", h.SendMessage)
		messages.POST("/read/:id", h.MarkMessagesAsRead)
	}

	files := r.Group("/api/files")
	files.Use(requireAuth)
	{
		files.POST("/upload", h.UploadFile)
	}

	r.GET("/files/:filename", h.ServeFile)
}

func (h *Handler) Health(c *gin.Context) {
	utils.Success(c, gin.H{"status": "ok"})
}
