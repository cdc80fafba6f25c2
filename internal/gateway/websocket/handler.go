package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/apps"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/bridge"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// App views load from the shell's own origin; cross-origin pages
		// never hold a valid connect token, which is the actual gate.
		return true
	},
}

// Handler handles WebSocket connections.
type Handler struct {
	hub      *Hub
	bridge   *bridge.Bridge
	registry *apps.Registry
	logger   *logger.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, b *bridge.Bridge, registry *apps.Registry, log *logger.Logger) *Handler {
	return &Handler{
		hub:      hub,
		bridge:   b,
		registry: registry,
		logger:   log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleConnection upgrades HTTP to WebSocket and runs the message pumps.
// The connect token is resolved to an app identity and bound on the bridge
// before the first frame is read, so the caller can never supply its own
// identity; without a valid token every dispatch fails NOT_INITIALIZED.
func (h *Handler) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = c.GetHeader("Authorization")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID, conn, h.hub, h.logger)
	h.hub.Register(client)
	go client.WritePump()

	appID, grants, ok := h.registry.ResolveToken(token)
	if !ok {
		h.logger.Warn("Connection with invalid token",
			zap.String("client_id", clientID),
			zap.String("remote_addr", c.Request.RemoteAddr))
		client.rejectUnbound()
		h.hub.Unregister(client)
		conn.Close()
		return
	}

	h.bridge.BindClient(clientID, bridge.Identity{AppID: appID, Grants: grants})

	h.logger.Debug("WebSocket connection established",
		zap.String("client_id", clientID),
		zap.String("app_id", appID))

	client.ReadPump(c.Request.Context())
}
