package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The extension connects from an extension origin; allow all.
		return true
	},
}

// Handler upgrades HTTP requests on the extension endpoint.
type Handler struct {
	hub       *Hub
	queueSize int
	logger    *logger.Logger
}

// NewHandler creates a connection handler. queueSize bounds each
// client's outbound queue.
func NewHandler(hub *Hub, queueSize int, log *logger.Logger) *Handler {
	return &Handler{
		hub:       hub,
		queueSize: queueSize,
		logger:    log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleConnection upgrades HTTP to WebSocket and pumps messages.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()

	h.logger.Debug("WebSocket connection established",
		zap.String("client_id", clientID),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	client := NewClient(clientID, conn, h.hub, h.queueSize, h.logger)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump(c.Request.Context())
}
