package handler

import (
	"campusskill/backend/internal/chat"
	"campusskill/backend/internal/models"
	"net/http"

	"github.com/gin-gonic/gin"
)

type postMessageRequest struct {
	Content     string             `json:"content"`
	MessageType models.MessageType `json:"messageType"`
	File        *models.FileRef    `json:"file"`
}

func (h *Handler) MyChats(c *gin.Context) {
	rooms, err := h.Chat.MyChats(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rooms), "chatRooms": rooms})
}

func (h *Handler) ChatForTask(c *gin.Context) {
	room, err := h.Chat.RoomForTask(c.Request.Context(), c.Param("taskId"), identity(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatRoom": room})
}

func (h *Handler) GetChat(c *gin.Context) {
	room, err := h.Chat.GetRoom(c.Request.Context(), c.Param("id"), identity(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatRoom": room})
}

// PostMessage зберігає повідомлення та розсилає його учасникам кімнати.
func (h *Handler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	roomID := c.Param("id")

	msg, err := h.Chat.AppendMessage(ctx, chat.MessageInput{
		RoomID:   roomID,
		SenderID: identity(c).UserID,
		Content:  req.Content,
		Type:     req.MessageType,
		File:     req.File,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.Hub.RelayMessage(ctx, roomID, msg)
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	roomID := c.Param("id")
	userID := identity(c).UserID

	updated, err := h.Chat.MarkRead(ctx, roomID, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if updated > 0 {
		h.Hub.RelayRead(ctx, roomID, userID)
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
