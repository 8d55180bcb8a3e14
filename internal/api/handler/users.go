package handler

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/ledger"
	"net/http"

	"github.com/gin-gonic/gin"
)

type rateUserRequest struct {
	Rating int     `json:"rating"`
	Review string  `json:"review"`
	TaskID *string `json:"taskId"`
}

type linkTelegramRequest struct {
	// ChatID nil unlinks the account.
	ChatID *int64 `json:"chatId"`
}

func (h *Handler) Profile(c *gin.Context) {
	user, err := h.Store.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Leaderboard: GET /api/users/leaderboard?limit=
func (h *Handler) Leaderboard(c *gin.Context) {
	limit := queryInt(c, "limit", 10)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	standings, err := h.Ledger.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(standings), "leaderboard": standings})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Ledger.Stats(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// RateUser leaves a standalone rating. It never awards rating points.
func (h *Handler) RateUser(c *gin.Context) {
	var req rateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	userID := c.Param("id")

	if _, err := h.Ledger.RecordRating(ctx, userID, ledger.RatingInput{
		Rating:  req.Rating,
		Review:  req.Review,
		RatedBy: identity(c).UserID,
		TaskID:  req.TaskID,
	}); err != nil {
		h.handleError(c, err)
		return
	}

	stats, err := h.Ledger.Stats(ctx, userID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"averageRating": stats.AverageRating,
		"totalRatings":  stats.TotalRatings,
	})
}

// LinkTelegram stores the chat id offline notifications are sent to.
func (h *Handler) LinkTelegram(c *gin.Context) {
	var req linkTelegramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.ChatID != nil && *req.ChatID == 0 {
		h.handleError(c, &apperror.ValidationError{Field: "chatId", Reason: "must not be zero"})
		return
	}
	if err := h.Store.SetTelegramChatID(c.Request.Context(), identity(c).UserID, req.ChatID); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"linked": req.ChatID != nil})
}
