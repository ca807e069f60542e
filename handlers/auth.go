package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"friendline/blob"
	"friendline/middleware"
	"friendline/models"
	"friendline/store"
	"friendline/utils"
)

type SignupRequest struct {
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	FullName      string `json:"fullName"`
	ProfileAvatar string `json:"profileAvatar"`
}

type AuthResponse struct {
	Token string              `json:"token"`
	User  models.UserResponse `json:"user"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		utils.BadRequest(c, "All fields are required")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.InternalError(c, "failed to hash password")
		return
	}

	user := &models.User{
		ID:          utils.GenerateUUID(),
		Email:       normalizeEmail(req.Email),
		DisplayName: fullName,
		Password:    string(hashedPassword),
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := h.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			utils.BadRequest(c, "Email already exists")
			return
		}
		utils.Fail(c, utils.Internal("failed to create user", err))
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Signup",
		"user_id":  user.ID,
	}).Info("user registered")

	h.issueSession(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), normalizeEmail(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		utils.Unauthorized(c, "Invalid credentials")
		return
	}
	if err != nil {
		utils.Fail(c, utils.Internal("failed to load user", err))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		utils.Unauthorized(c, "Invalid credentials")
		return
	}

	h.issueSession(c, http.StatusOK, user)
}

func (h *Handler) Logout(c *gin.Context) {
	h.setTokenCookie(c, "", -1)
	utils.Message(c, "Logged out successfully")
}

func (h *Handler) Check(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if errors.Is(err, store.ErrNotFound) {
		utils.NotFoundResponse(c, "User not found.")
		return
	}
	if err != nil {
		utils.Fail(c, utils.Internal("failed to load user", err))
		return
	}

	utils.Success(c, user.ToResponse())
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" && req.ProfileAvatar == "" {
		utils.BadRequest(c, "Nothing to update")
		return
	}

	var avatarURL string
	if req.ProfileAvatar != "" {
		url, err := h.blobs.PutImageDataURI(c.Request.Context(), req.ProfileAvatar)
		if err != nil {
			utils.Fail(c, blob.AsClientError(err))
			return
		}
		avatarURL = url
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), userID, fullName, avatarURL)
	if errors.Is(err, store.ErrNotFound) {
		utils.NotFoundResponse(c, "User not found.")
		return
	}
	if err != nil {
		utils.Fail(c, utils.Internal("failed to update profile", err))
		return
	}

	utils.Success(c, user.ToResponse())
}

func (h *Handler) issueSession(c *gin.Context, status int, user *models.User) {
	token, err := h.tokens.GenerateToken(user.ID)
	if err != nil {
		utils.Fail(c, utils.Internal("failed to generate token", err))
		return
	}

	h.setTokenCookie(c, token, int(h.tokens.TTL().Seconds()))
	c.JSON(status, AuthResponse{Token: token, User: *user.ToResponse()})
}

func (h *Handler) setTokenCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", h.secureCookies, true)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
