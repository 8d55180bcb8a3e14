// Package handler is the HTTP layer: it authenticates callers, decodes
// requests and maps the typed results of the core services to responses.
package handler

import (
	"campusskill/backend/internal/apperror"
	"campusskill/backend/internal/auth"
	"campusskill/backend/internal/chat"
	"campusskill/backend/internal/chathub"
	"campusskill/backend/internal/engine"
	"campusskill/backend/internal/ledger"
	"campusskill/backend/internal/logger"
	"campusskill/backend/internal/storage"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// Handler містить посилання на сервіси ядра та Chat Hub
type Handler struct {
	Store  storage.Storage
	Engine *engine.Engine
	Ledger *ledger.Ledger
	Chat   *chat.Manager
	Hub    *chathub.ManagerService
	Auth   *auth.Issuer
	Log    *zap.Logger

	AllowOpenSignup bool
}

func NewHandler(
	store storage.Storage,
	eng *engine.Engine,
	l *ledger.Ledger,
	c *chat.Manager,
	hub *chathub.ManagerService,
	issuer *auth.Issuer,
	allowOpenSignup bool,
	log *zap.Logger,
) *Handler {
	return &Handler{
		Store:           store,
		Engine:          eng,
		Ledger:          l,
		Chat:            c,
		Hub:             hub,
		Auth:            issuer,
		Log:             logger.OrNop(log),
		AllowOpenSignup: allowOpenSignup,
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.Default()
	h.Register(r)
	return r
}

// Register mounts the API under /api and the websocket endpoint at /ws.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api")
	api.GET("/health", h.Health)

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.GET("/me", h.RequireAuth(), h.Me)

	tasks := api.Group("/tasks")
	tasks.GET("", h.ListTasks)
	tasks.GET("/my-tasks", h.RequireAuth(), h.MyTasks)
	tasks.GET("/user/:userId", h.UserTasks)
	tasks.GET("/:id", h.GetTask)
	tasks.POST("", h.RequireAuth(), h.CreateTask)
	tasks.PUT("/:id/take", h.RequireAuth(), h.TakeTask)
	tasks.PUT("/:id/submit", h.RequireAuth(), h.SubmitTask)
	tasks.PUT("/:id/review", h.RequireAuth(), h.ReviewTask)
	tasks.PUT("/:id/reassign", h.RequireAuth(), h.ReassignTask)
	tasks.DELETE("/:id", h.RequireAuth(), h.DeleteTask)

	users := api.Group("/users")
	users.GET("/leaderboard", h.Leaderboard)
	users.GET("/profile/:id", h.Profile)
	users.GET("/stats", h.RequireAuth(), h.Stats)
	users.POST("/:id/rate", h.RequireAuth(), h.RateUser)
	users.PUT("/me/telegram", h.RequireAuth(), h.LinkTelegram)

	chats := api.Group("/chat", h.RequireAuth())
	chats.GET("/my-chats", h.MyChats)
	chats.GET("/task/:taskId", h.ChatForTask)
	chats.GET("/:id", h.GetChat)
	chats.POST("/:id/message", h.PostMessage)
	chats.PUT("/:id/read", h.MarkRead)
}

// Health pings the database.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		h.Log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected"})
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity on the context.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := h.identify(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

var errMissingToken = errors.New("authorization token missing")

// identify reads the bearer token from the Authorization header, falling
// back to the token query parameter used by websocket clients.
func (h *Handler) identify(c *gin.Context) (auth.Identity, error) {
	token := ""
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(header[len("Bearer "):])
	}
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		return auth.Identity{}, errMissingToken
	}
	return h.Auth.Verify(token)
}

func identity(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(auth.Identity)
	return id
}

// handleError writes the status matching a core error. Unknown errors are
// logged and reported as 500 without their text.
func (h *Handler) handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperror.IsNotFound(err):
		status = http.StatusNotFound
	case apperror.IsForbidden(err):
		status = http.StatusForbidden
	case apperror.IsInvalidState(err),
		apperror.IsConflict(err),
		apperror.IsDuplicateRating(err),
		apperror.IsAlreadyAssigned(err):
		status = http.StatusConflict
	case apperror.IsValidation(err):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
