// Package extension is the Go client for the extension WebSocket
// channel. It maintains the connection, replays the handshake after
// reconnects, correlates request/response pairs, and surfaces server
// pushes through callbacks.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// requestTimeout bounds one request/response round trip.
const requestTimeout = 30 * time.Second

// Callbacks are invoked from the client's read loop, one at a time, in
// server delivery order. Nil callbacks are skipped.
type Callbacks struct {
	OnStatus               func(protocol.TaskStatus)
	OnLogEvent             func(protocol.LogEvent)
	OnTaskStarted          func(protocol.TaskStarted)
	OnTaskResult           func(protocol.TaskResult)
	OnChatResponse         func(protocol.ChatResponse)
	OnConversationReset    func(protocol.ChatResponse)
	OnAgentNeedsHelp       func(protocol.AgentNeedsHelp)
	OnHelpResponseReceived func(protocol.HelpResponseReceived)
	OnError                func(protocol.ErrorPayload)

	// OnDisconnect fires when the connection is lost and every
	// reconnect attempt has been exhausted.
	OnDisconnect func(err error)
}

// Client is a reconnecting extension channel client.
type Client struct {
	url       string
	callbacks Callbacks

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan *protocol.Message
	out     chan []byte
	closed  bool

	done chan struct{}
}

// NewClient creates a client for serverURL (defaulting to the well-known
// local server). Connect must be called before use.
func NewClient(serverURL string, callbacks Callbacks) *Client {
	if serverURL == "" {
		serverURL = protocol.DefaultServerURL
	}
	return &Client{
		url:       serverURL + protocol.Namespace,
		callbacks: callbacks,
		pending:   make(map[string]chan *protocol.Message),
		done:      make(chan struct{}),
	}
}

// Connect dials the server and performs the extension_connect
// handshake. On success the read and write loops run until Close or a
// connection loss that exhausts the reconnect budget.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// dial establishes one connection and performs the handshake.
func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	hello, err := protocol.NewRequest(uuid.New().String(), protocol.EventExtensionConnect, nil)
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	// Ask for the authoritative status; the reply reaches OnStatus like
	// a server push, so reconnects always reconcile even if the
	// broadcast path is quiet.
	statusReq, err := protocol.NewRequest(uuid.New().String(), protocol.EventGetStatus, nil)
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteJSON(statusReq); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	c.mu.Lock()
	if c.out != nil {
		// Release the previous connection's write loop.
		close(c.out)
	}
	c.conn = conn
	c.out = make(chan []byte, 64)
	c.mu.Unlock()

	go c.writeLoop(conn, c.out)
	return nil
}

// run reads messages and reconnects on failure, up to the reconnect
// budget with a fixed delay between attempts.
func (c *Client) run(ctx context.Context) {
	for {
		err := c.readLoop()

		c.mu.Lock()
		closed := c.closed
		c.failPendingLocked(err)
		c.mu.Unlock()

		if closed || ctx.Err() != nil {
			return
		}

		if !c.reconnect(ctx) {
			if c.callbacks.OnDisconnect != nil {
				c.callbacks.OnDisconnect(err)
			}
			return
		}
	}
}

// reconnect retries the dial with the protocol's fixed budget.
func (c *Client) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= protocol.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		case <-time.After(protocol.ReconnectDelayMs * time.Millisecond):
		}

		if err := c.dial(ctx); err == nil {
			return true
		}
	}
	return false
}

// readLoop dispatches incoming messages until the connection drops.
func (c *Client) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.dispatch(&msg)
	}
}

// dispatch routes one incoming message: responses resolve their pending
// request, notifications hit the callbacks.
func (c *Client) dispatch(msg *protocol.Message) {
	if msg.ID != "" && (msg.Type == protocol.MessageTypeResponse || msg.Type == protocol.MessageTypeError) {
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
			return
		}
	}

	switch msg.Event {
	case protocol.EventStatus:
		var status protocol.TaskStatus
		if msg.ParsePayload(&status) == nil && c.callbacks.OnStatus != nil {
			c.callbacks.OnStatus(status)
		}
	case protocol.EventLogEvent:
		var event protocol.LogEvent
		if msg.ParsePayload(&event) == nil && c.callbacks.OnLogEvent != nil {
			c.callbacks.OnLogEvent(event)
		}
	case protocol.EventTaskStarted:
		var started protocol.TaskStarted
		if msg.ParsePayload(&started) == nil && c.callbacks.OnTaskStarted != nil {
			c.callbacks.OnTaskStarted(started)
		}
	case protocol.EventTaskResult:
		var result protocol.TaskResult
		if msg.ParsePayload(&result) == nil && c.callbacks.OnTaskResult != nil {
			c.callbacks.OnTaskResult(result)
		}
	case protocol.EventChatResponse:
		var resp protocol.ChatResponse
		if msg.ParsePayload(&resp) == nil && c.callbacks.OnChatResponse != nil {
			c.callbacks.OnChatResponse(resp)
		}
	case protocol.EventConversationReset:
		var resp protocol.ChatResponse
		if msg.ParsePayload(&resp) == nil && c.callbacks.OnConversationReset != nil {
			c.callbacks.OnConversationReset(resp)
		}
	case protocol.EventAgentNeedsHelp:
		var help protocol.AgentNeedsHelp
		if msg.ParsePayload(&help) == nil && c.callbacks.OnAgentNeedsHelp != nil {
			c.callbacks.OnAgentNeedsHelp(help)
		}
	case protocol.EventHelpResponseReceived:
		var ack protocol.HelpResponseReceived
		if msg.ParsePayload(&ack) == nil && c.callbacks.OnHelpResponseReceived != nil {
			c.callbacks.OnHelpResponseReceived(ack)
		}
	case protocol.EventError:
		var payload protocol.ErrorPayload
		if msg.ParsePayload(&payload) == nil && c.callbacks.OnError != nil {
			c.callbacks.OnError(payload)
		}
	}
}

// writeLoop serializes outbound writes for one connection.
func (c *Client) writeLoop(conn *websocket.Conn, out <-chan []byte) {
	for data := range out {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, []byte{})
	conn.Close()
}

// failPendingLocked rejects all in-flight requests after a drop.
func (c *Client) failPendingLocked(err error) {
	if err == nil {
		err = errors.New("connection lost")
	}
	for id, ch := range c.pending {
		delete(c.pending, id)
		msg, buildErr := protocol.NewError(id, err.Error(), nil)
		if buildErr == nil {
			ch <- msg
		} else {
			close(ch)
		}
	}
}

// Request sends a request and waits for its correlated response.
func (c *Client) Request(ctx context.Context, event string, payload interface{}) (*protocol.Message, error) {
	msg, err := protocol.NewRequest(uuid.New().String(), event, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	ch := make(chan *protocol.Message, 1)

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil, errors.New("client is not connected")
	}
	c.pending[msg.ID] = ch
	select {
	case c.out <- data:
	default:
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, errors.New("outbound queue full")
	}
	c.mu.Unlock()

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, errors.New("connection lost")
		}
		if resp.Type == protocol.MessageTypeError {
			var payload protocol.ErrorPayload
			_ = resp.ParsePayload(&payload)
			return resp, fmt.Errorf("server error: %s", payload.Message)
		}
		return resp, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, errors.New("request timed out")
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget request without waiting for a reply.
func (c *Client) Notify(event string, payload interface{}) error {
	msg, err := protocol.NewRequest(uuid.New().String(), event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return errors.New("client is not connected")
	}
	select {
	case c.out <- data:
		return nil
	default:
		return errors.New("outbound queue full")
	}
}

// Close shuts the client down permanently; no reconnects follow.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.out != nil {
		close(c.out)
	}
}

// GetStatus fetches the authoritative task status.
func (c *Client) GetStatus(ctx context.Context) (protocol.TaskStatus, error) {
	var status protocol.TaskStatus
	resp, err := c.Request(ctx, protocol.EventGetStatus, nil)
	if err != nil {
		return status, err
	}
	err = resp.ParsePayload(&status)
	return status, err
}

// StartTask submits a start request.
func (c *Client) StartTask(ctx context.Context, req protocol.StartTaskRequest) error {
	return c.Notify(protocol.EventStartTask, req)
}

// StartClarifiedTask submits a start request produced by the
// clarification dialog.
func (c *Client) StartClarifiedTask(ctx context.Context, req protocol.StartTaskRequest) error {
	return c.Notify(protocol.EventStartClarifiedTask, req)
}

// StopTask requests cooperative termination.
func (c *Client) StopTask(ctx context.Context) (protocol.TaskActionResult, error) {
	return c.action(ctx, protocol.EventStopTask)
}

// PauseTask requests a pause at the next step boundary.
func (c *Client) PauseTask(ctx context.Context) (protocol.TaskActionResult, error) {
	return c.action(ctx, protocol.EventPauseTask)
}

// ResumeTask resumes a paused task.
func (c *Client) ResumeTask(ctx context.Context) (protocol.TaskActionResult, error) {
	return c.action(ctx, protocol.EventResumeTask)
}

func (c *Client) action(ctx context.Context, event string) (protocol.TaskActionResult, error) {
	var result protocol.TaskActionResult
	resp, err := c.Request(ctx, event, nil)
	if err != nil {
		return result, err
	}
	err = resp.ParsePayload(&result)
	return result, err
}

// Chat sends one clarification message and returns the assistant turn.
func (c *Client) Chat(ctx context.Context, message string) (protocol.ChatResponse, error) {
	var chatResp protocol.ChatResponse
	resp, err := c.Request(ctx, protocol.EventChatMessage, protocol.ChatMessage{Message: message})
	if err != nil {
		return chatResp, err
	}
	err = resp.ParsePayload(&chatResp)
	return chatResp, err
}

// ResetConversation clears the dialog and returns the fresh greeting.
func (c *Client) ResetConversation(ctx context.Context) (protocol.ChatResponse, error) {
	var chatResp protocol.ChatResponse
	resp, err := c.Request(ctx, protocol.EventResetConversation, nil)
	if err != nil {
		return chatResp, err
	}
	err = resp.ParsePayload(&chatResp)
	return chatResp, err
}

// RespondHelp resolves a pending help request with guidance text.
func (c *Client) RespondHelp(ctx context.Context, response string) error {
	_, err := c.Request(ctx, protocol.EventUserHelpResponse, protocol.UserHelpResponse{Response: response})
	return err
}
