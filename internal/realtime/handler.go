package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rapidride/internal/domain"
	"rapidride/internal/identity"
)

// Authenticator resolves a bearer token to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*identity.Claims, *domain.Account, error)
}

// Handler upgrades HTTP requests to WebSocket sessions.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
	ctx      context.Context
}

// NewHandler creates a new Handler. ctx bounds the lifetime of inbound
// event processing; checkOrigin decides which browser origins may connect.
func NewHandler(ctx context.Context, hub *Hub, auth Authenticator, checkOrigin func(origin string) bool) *Handler {
	return &Handler{
		hub:  hub,
		auth: auth,
		ctx:  ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || checkOrigin == nil || checkOrigin(origin)
			},
		},
	}
}

// ServeWS handles GET /ws. The token comes from the token query
// parameter or the Authorization header and is verified once.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	_, account, err := h.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		status := http.StatusUnauthorized
		if !errors.Is(err, identity.ErrInvalidToken) && !errors.Is(err, identity.ErrNoAccount) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": "authentication failed"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := newSession(h.hub, conn, Client{
		SessionID: uuid.New().String(),
		AccountID: account.ID,
		Role:      account.Role,
	})
	h.hub.register(s)

	go s.writePump()
	go s.readPump(h.ctx)
}
