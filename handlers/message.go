package handlers

import (
	"github.com/gin-gonic/gin"

	"friendline/messaging"
	"friendline/middleware"
	"friendline/models"
	"friendline/utils"
)

type SendMessageRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// GetSidebar lists the conversations shown next to the chat window.
func (h *Handler) GetSidebar(c *gin.Context) {
	peers, err := h.messages.Sidebar(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	if peers == nil {
		peers = []models.PeerSummary{}
	}
	utils.Success(c, peers)
}

func (h *Handler) GetMessages(c *gin.Context) {
	msgs, err := h.messages.History(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	utils.Success(c, msgs)
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), messaging.SendInput{
		Text:  req.Text,
		Image: req.Image,
	})
	if err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Created(c, msg)
}

func (h *Handler) MarkMessagesAsRead(c *gin.Context) {
	if _, err := h.messages.MarkRead(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		utils.Fail(c, err)
		return
	}
	utils.Message(c, "Messages marked as read.")
}
