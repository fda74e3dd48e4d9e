package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Authenticator is satisfied by services.AuthService.
type Authenticator interface {
	Authenticate(token string) (uuid.UUID, error)
}

// Handler upgrades authenticated requests on /ws.
type Handler struct {
	hub        *Hub
	auth       Authenticator
	authorizer *ChannelAuthorizer
	presence   Presence
	logger     *WebSocketLogger
}

// NewHandler accepts a nil presence when Redis is disabled.
func NewHandler(hub *Hub, auth Authenticator, authorizer *ChannelAuthorizer, presence Presence, logger *WebSocketLogger) *Handler {
	return &Handler{
		hub:        hub,
		auth:       auth,
		authorizer: authorizer,
		presence:   presence,
		logger:     logger,
	}
}

func (h *Handler) Handle(c *gin.Context) {
	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token", "code": "unauthorized"})
		return
	}

	userID, err := h.auth.Authenticate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "code": "unauthorized"})
		return
	}

	if !h.hub.rateLimiter.AllowConnection(userID) {
		h.logger.Warn("connection rate limit exceeded", userID, "")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections", "code": "rate_limited"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", userID, "", err)
		return
	}

	client := NewClient(h.hub, conn, userID, h.authorizer, h.presence, h.logger)
	h.logger.Info("client connected", userID, client.clientID, zap.String("remote_addr", c.ClientIP()))
	client.Start()
}

func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}
