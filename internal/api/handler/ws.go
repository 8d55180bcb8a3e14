package handler

import (
	"campusskill/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: обмежити дозволені origin списком з конфігурації.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket. Токен береться з
// заголовка Authorization або з параметра token.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	id, err := h.identify(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, id.UserID)
	if err := h.Hub.Register(client); err != nil {
		h.Log.Warn("websocket rejected", zap.String("user_id", id.UserID), zap.Error(err))
		_ = conn.Close()
	}
}
