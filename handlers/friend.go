package handlers

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"friendline/middleware"
	"friendline/models"
	"friendline/relation"
	"friendline/utils"
)

type TargetRequest struct {
	TargetUserID string `json:"targetUserId" binding:"required"`
}

type RequesterRequest struct {
	RequesterID string `json:"requesterId" binding:"required"`
}

type FriendIDRequest struct {
	FriendID string `json:"friendId" binding:"required"`
}

type UsersByIDsRequest struct {
	IDs []string `json:"ids" binding:"required,max=500"`
}

// directoryConcurrency bounds the record loads of one all-users listing.
const directoryConcurrency = 8

func (h *Handler) SendFriendRequest(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	outcome, err := h.friends.SendRequest(c.Request.Context(), userID, req.TargetUserID)
	if err != nil {
		utils.Fail(c, err)
		return
	}

	if outcome == relation.OutcomeAccepted {
		utils.Message(c, "Friend request accepted.")
		return
	}
	utils.Message(c, "Friend request sent.")
}

func (h *Handler) AcceptFriendRequest(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req RequesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.friends.AcceptRequest(c.Request.Context(), userID, req.RequesterID); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Message(c, "Friend request accepted.")
}

func (h *Handler) DeclineFriendRequest(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req RequesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.friends.DeclineRequest(c.Request.Context(), userID, req.RequesterID); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Message(c, "Friend request declined.")
}

func (h *Handler) RemoveFriend(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req FriendIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.friends.RemoveFriend(c.Request.Context(), userID, req.FriendID); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Message(c, "Friend removed.")
}

func (h *Handler) BlockUser(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.friends.Block(c.Request.Context(), userID, req.TargetUserID); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Message(c, "User blocked.")
}

func (h *Handler) UnblockUser(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	if err := h.friends.Unblock(c.Request.Context(), userID, req.TargetUserID); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Message(c, "User unblocked.")
}

func (h *Handler) GetFriendRequests(c *gin.Context) {
	h.listRelated(c, "requests", func(r *models.Relationship) []string { return r.RequestsReceived })
}

func (h *Handler) GetSentFriendRequests(c *gin.Context) {
	h.listRelated(c, "sentRequests", func(r *models.Relationship) []string { return r.RequestsSent })
}

func (h *Handler) GetFriends(c *gin.Context) {
	h.listRelated(c, "friends", func(r *models.Relationship) []string { return r.Friends })
}

// listRelated answers with the summaries of one set in the caller's record.
func (h *Handler) listRelated(c *gin.Context, key string, pick func(*models.Relationship) []string) {
	ctx := c.Request.Context()

	rec, err := h.friends.Record(ctx, middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}

	users, err := h.users.Summaries(ctx, pick(rec))
	if err != nil {
		utils.Fail(c, utils.Internal("failed to load users", err))
		return
	}
	if users == nil {
		users = []models.UserSummary{}
	}

	utils.Success(c, gin.H{key: users})
}

func (h *Handler) GetUsersByIDs(c *gin.Context) {
	var req UsersByIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	users, err := h.users.Summaries(c.Request.Context(), req.IDs)
	if err != nil {
		utils.Fail(c, utils.Internal("failed to load users", err))
		return
	}
	if users == nil {
		users = []models.UserSummary{}
	}

	utils.Success(c, gin.H{"users": users})
}

// GetAllUsers lists every other user together with that user's block list.
func (h *Handler) GetAllUsers(c *gin.Context) {
	ctx := c.Request.Context()

	all, err := h.users.ListExcept(ctx, middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, utils.Internal("failed to load users", err))
		return
	}

	entries := make([]models.DirectoryEntry, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(directoryConcurrency)
	for i := range all {
		g.Go(func() error {
			rec, err := h.friends.Record(gctx, all[i].ID)
			if err != nil {
				return err
			}
			blocked := rec.Blocked
			if blocked == nil {
				blocked = []string{}
			}
			entries[i] = models.DirectoryEntry{UserSummary: all[i].ToSummary(), BlockedUsers: blocked}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		utils.Fail(c, err)
		return
	}

	utils.Success(c, gin.H{"users": entries})
}
