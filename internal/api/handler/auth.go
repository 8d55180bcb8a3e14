package handler

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/auth"
	"campusskill/backend/internal/models"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signupRequest struct {
	Name   string   `json:"name" binding:"required"`
	Email  string   `json:"email" binding:"required"`
	Role   string   `json:"role" binding:"required"`
	Bio    string   `json:"bio"`
	Skills []string `json:"skills"`
}

// Signup створює профіль користувача та повертає JWT.
// Доступний лише коли ALLOW_OPEN_SIGNUP увімкнено.
func (h *Handler) Signup(c *gin.Context) {
	if !h.AllowOpenSignup {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "open signup is disabled"})
		return
	}

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		badRequest(c, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		h.handleError(c, &apperror.ValidationError{Field: "email", Reason: "must be an email address"})
		return
	}

	user := &models.User{
		Name:   strings.TrimSpace(req.Name),
		Email:  email,
		Role:   role,
		Bio:    req.Bio,
		Skills: req.Skills,
	}
	if err := h.Store.CreateUser(c.Request.Context(), user); err != nil {
		h.handleError(c, err)
		return
	}

	token, err := h.Auth.Sign(auth.Identity{UserID: user.ID, Role: user.Role})
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.Log.Info("user signed up", zap.String("user_id", user.ID), zap.String("role", role.String()))
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.Store.GetUser(c.Request.Context(), identity(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
