package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Client represents a single extension WebSocket connection. Its ID
// doubles as the conversation session ID.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	// replayMark is the log-stream sequence covered by this client's
	// handshake replay. Touched only by the hub run loop.
	replayMark uint64

	mu     sync.Mutex
	closed bool

	logger *logger.Logger
}

// NewClient creates a client with an outbound queue of queueSize.
func NewClient(id string, conn *websocket.Conn, hub *Hub, queueSize int, log *logger.Logger) *Client {
	return &Client{
		ID:     id,
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, queueSize),
		logger: log.WithFields(zap.String("client_id", id)),
	}
}

// ReadPump pumps messages from the WebSocket connection to the dispatcher.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			break
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error("Failed to parse message", zap.Error(err))
			c.sendError("", "Invalid message format", nil)
			continue
		}

		c.handleMessage(ctx, &msg)
	}
}

// handleMessage dispatches one incoming message. Messages from a single
// client are processed strictly in arrival order.
func (c *Client) handleMessage(ctx context.Context, msg *protocol.Message) {
	c.logger.Debug("Received message",
		zap.String("event", msg.Event),
		zap.String("id", msg.ID))

	response, err := c.hub.dispatcher.Dispatch(ctx, c, msg)
	if err != nil {
		c.logger.Error("Handler error",
			zap.String("event", msg.Event),
			zap.Error(err))
		c.sendError(msg.ID, err.Error(), nil)
		return
	}

	// Replies go through the hub loop so they land behind any broadcast
	// committed while the handler ran.
	if response != nil {
		c.hub.Send(c, response)
	}
}

// enqueue marshals and queues a message. Returns false when the queue
// is full or the client is closed.
func (c *Client) enqueue(msg *protocol.Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return true
	}
	return c.enqueueRaw(data)
}

// enqueueRaw queues pre-marshaled bytes.
func (c *Client) enqueueRaw(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend marks the client closed and releases the write pump. Only
// the hub run loop calls this.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// kick forcibly closes the connection. The read pump unwinds and
// unregisters the client from the hub.
func (c *Client) kick() {
	c.conn.Close()
}

// sendError sends an error message to the client, ordered through the
// hub loop like any other reply.
func (c *Client) sendError(id, message string, details map[string]interface{}) {
	msg, err := protocol.NewError(id, message, details)
	if err != nil {
		c.logger.Error("Failed to create error message", zap.Error(err))
		return
	}
	c.hub.Send(c, msg)
}

// WritePump pumps queued messages to the WebSocket connection, one
// message per frame so the peer can parse each frame as a document.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
