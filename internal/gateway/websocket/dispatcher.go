package websocket

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// HandlerFunc processes one incoming message for a client. A non-nil
// returned message is sent back to that client.
type HandlerFunc func(ctx context.Context, c *Client, msg *protocol.Message) (*protocol.Message, error)

// Dispatcher routes incoming messages to handlers by event name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to an event name. Last registration wins.
func (d *Dispatcher) Register(event string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = h
}

// Dispatch routes msg to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, msg *protocol.Message) (*protocol.Message, error) {
	d.mu.RLock()
	h, ok := d.handlers[msg.Event]
	d.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown event: %s", msg.Event)
	}
	return h(ctx, c, msg)
}
