// Package websocket is the WebSocket gateway for the extension channel.
// It owns the session registry, the per-client outbound queues, and the
// dispatch of incoming events to server components.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// ReplayProvider returns the recent log events replayed to a client on
// handshake, oldest first, plus the ring's high-water sequence at that
// moment. Queued broadcasts at or below the mark are already covered by
// the replay and are skipped for that client.
type ReplayProvider func() ([]protocol.LogEvent, uint64)

// StatusProvider returns the authoritative task status snapshot.
type StatusProvider func() protocol.TaskStatus

// outbound is one queued delivery. A nil client means fan out to every
// ready client; seq carries the log-stream sequence for broadcasts that
// have one, zero otherwise.
type outbound struct {
	client *Client
	msg    *protocol.Message
	seq    uint64
}

// Hub manages all extension client connections. Broadcasts, directed
// replies, and handshake replays are serialized through the run loop,
// so each client observes them in commit order and replayed history
// strictly before live events.
type Hub struct {
	// All registered clients. The value records whether the client has
	// completed the extension_connect handshake; only ready clients
	// receive broadcasts.
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	ready      chan *Client
	outbox     chan outbound

	dispatcher *Dispatcher

	replayProvider ReplayProvider
	statusProvider StatusProvider

	onDisconnect func(clientID string)

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a hub. Providers are wired afterwards by the gateway
// setup, before Run is called.
func NewHub(dispatcher *Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ready:      make(chan *Client),
		outbox:     make(chan outbound, 256),
		dispatcher: dispatcher,
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// SetReplayProvider sets the source of handshake replay events.
func (h *Hub) SetReplayProvider(p ReplayProvider) { h.replayProvider = p }

// SetStatusProvider sets the source of the handshake status snapshot.
func (h *Hub) SetStatusProvider(p StatusProvider) { h.statusProvider = p }

// SetDisconnectHandler registers a callback invoked with the client ID
// after a client is removed.
func (h *Hub) SetDisconnectHandler(fn func(clientID string)) { h.onDisconnect = fn }

// Run starts the hub's main processing loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = false
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)

		case client := <-h.ready:
			h.replayTo(client)

		case item := <-h.outbox:
			if item.client != nil {
				h.deliver(item.client, item.msg)
			} else {
				h.broadcastMessage(item.msg, item.seq)
			}
		}
	}
}

// replayTo delivers the recent history and current status to a freshly
// handshaken client, then marks it ready for live broadcasts. Running
// inside the hub loop, nothing can interleave between the replay and
// the first live event.
func (h *Hub) replayTo(client *Client) {
	h.mu.RLock()
	_, known := h.clients[client]
	h.mu.RUnlock()
	if !known {
		return
	}

	if h.replayProvider != nil {
		events, mark := h.replayProvider()
		for _, event := range events {
			msg, err := protocol.NewNotification(protocol.EventLogEvent, event)
			if err != nil {
				h.logger.Error("Failed to build replay event", zap.Error(err))
				continue
			}
			if !client.enqueue(msg) {
				client.kick()
				return
			}
		}
		// Only the hub loop reads or writes the mark.
		client.replayMark = mark
	}
	if h.statusProvider != nil {
		msg, err := protocol.NewNotification(protocol.EventStatus, h.statusProvider())
		if err == nil && !client.enqueue(msg) {
			client.kick()
			return
		}
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.logger.Debug("Client ready", zap.String("client_id", client.ID))
}

// closeAllClients closes all client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
}

// removeClient removes a client from the hub.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
		client.closeSend()
	}
	h.mu.Unlock()

	if ok {
		h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
		if h.onDisconnect != nil {
			h.onDisconnect(client.ID)
		}
	}
}

// deliver queues a message for one client. A client whose queue is full
// cannot keep up and gets disconnected rather than silently losing
// messages.
func (h *Hub) deliver(client *Client, msg *protocol.Message) {
	if !client.enqueue(msg) {
		h.logger.Warn("Disconnecting slow client", zap.String("client_id", client.ID))
		client.kick()
	}
}

// broadcastMessage fans a message out to every ready client, skipping
// sequenced events a client already received through its handshake
// replay.
func (h *Hub) broadcastMessage(msg *protocol.Message, seq uint64) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	var slow []*Client

	h.mu.RLock()
	for client, ready := range h.clients {
		if !ready {
			continue
		}
		if seq != 0 && seq <= client.replayMark {
			continue
		}
		if !client.enqueueRaw(data) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Disconnecting slow client", zap.String("client_id", client.ID))
		client.kick()
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Ready requests the handshake replay for a client and admits it to
// live broadcasts once the replay is queued.
func (h *Hub) Ready(client *Client) {
	h.ready <- client
}

// Broadcast queues a message for all ready clients. seq is the
// log-stream sequence for events that carry one, zero otherwise.
// Broadcasts and directed sends share one queue, so each client
// receives them in the order they were committed here.
func (h *Hub) Broadcast(msg *protocol.Message, seq uint64) {
	h.outbox <- outbound{msg: msg, seq: seq}
}

// Send queues a message for a single client, ordered after any
// broadcasts already committed.
func (h *Hub) Send(client *Client, msg *protocol.Message) {
	h.outbox <- outbound{client: client, msg: msg}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
