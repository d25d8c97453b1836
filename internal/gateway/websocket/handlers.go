package websocket

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/conversation"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/task"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

var errEmptyMessage = errors.New("message must not be empty")

// Service wires the extension events to the server components.
type Service struct {
	hub          *Hub
	tasks        *task.Manager
	conversation *conversation.Manager
	logger       *logger.Logger
}

// NewService creates the event service.
func NewService(hub *Hub, tasks *task.Manager, conv *conversation.Manager, log *logger.Logger) *Service {
	return &Service{
		hub:          hub,
		tasks:        tasks,
		conversation: conv,
		logger:       log.WithFields(zap.String("component", "ws_service")),
	}
}

// RegisterHandlers binds every extension event to its handler.
func (s *Service) RegisterHandlers(d *Dispatcher) {
	d.Register(protocol.EventExtensionConnect, s.handleExtensionConnect)
	d.Register(protocol.EventGetStatus, s.handleGetStatus)
	d.Register(protocol.EventStartTask, s.handleStartTask)
	d.Register(protocol.EventStartClarifiedTask, s.handleStartTask)
	d.Register(protocol.EventStopTask, s.handleStopTask)
	d.Register(protocol.EventPauseTask, s.handlePauseTask)
	d.Register(protocol.EventResumeTask, s.handleResumeTask)
	d.Register(protocol.EventChatMessage, s.handleChatMessage)
	d.Register(protocol.EventResetConversation, s.handleResetConversation)
	d.Register(protocol.EventUserHelpResponse, s.handleUserHelpResponse)
	d.Register(protocol.EventHealthCheck, s.handleHealthCheck)
}

// handleExtensionConnect acknowledges the handshake and schedules the
// history replay. The acknowledgement is queued before the replay, so
// the client sees: ack, replayed log events, status, then live events.
func (s *Service) handleExtensionConnect(_ context.Context, c *Client, msg *protocol.Message) (*protocol.Message, error) {
	ack, err := protocol.NewResponse(msg.ID, msg.Event, map[string]interface{}{
		"status":    "connected",
		"client_id": c.ID,
	})
	if err != nil {
		return nil, err
	}
	if !c.enqueue(ack) {
		c.kick()
		return nil, nil
	}

	s.hub.Ready(c)
	return nil, nil
}

func (s *Service) handleGetStatus(_ context.Context, _ *Client, msg *protocol.Message) (*protocol.Message, error) {
	return protocol.NewResponse(msg.ID, protocol.EventStatus, s.tasks.Status())
}

// handleStartTask serves both start_task and start_clarified_task; the
// two differ only in how the client produced the task text.
func (s *Service) handleStartTask(_ context.Context, _ *Client, msg *protocol.Message) (*protocol.Message, error) {
	var req protocol.StartTaskRequest
	if err := msg.ParsePayload(&req); err != nil {
		return nil, err
	}

	if err := s.tasks.Start(req); err != nil {
		return protocol.NewResponse(msg.ID, protocol.EventTaskActionResult, protocol.TaskActionResult{
			Success: false,
			Error:   err.Error(),
		})
	}

	// The accepted path answers through broadcasts: task_started and
	// the status snapshot arrive on the shared channel.
	return nil, nil
}

func (s *Service) handleStopTask(_ context.Context, _ *Client, msg *protocol.Message) (*protocol.Message, error) {
	return protocol.NewResponse(msg.ID, protocol.EventTaskActionResult, s.tasks.Stop())
}

func (s *Service) handlePauseTask(_ context.Context, _ *Client, msg *protocol.Message) (*protocol.Message, error) {
	return protocol.NewResponse(msg.ID, protocol.EventTaskActionResult, s.tasks.Pause())
}

func (s *Service) handleResumeTask(_ context.Context, _ *Client, msg *protocol.Message) (*protocol.Message, error) {
	return protocol.NewResponse(msg.ID, protocol.EventTaskActionResult, s.tasks.Resume())
}

func (s *Service) handleChatMessage(ctx context.Context, c *Client, msg *protocol.Message) (*protocol.Message, error) {
	var req protocol.ChatMessage
	if err := msg.ParsePayload(&req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, errEmptyMessage
	}

	resp := s.conversation.HandleMessage(ctx, c.ID, req.Message)
	return protocol.NewResponse(msg.ID, protocol.EventChatResponse, resp)
}

func (s *Service) handleResetConversation(_ context.Context, c *Client, msg *protocol.Message) (*protocol.Message, error) {
	resp := s.conversation.Reset(c.ID)
	return protocol.NewResponse(msg.ID, protocol.EventConversationReset, resp)
}

func (s *Service) handleUserHelpResponse(_ context.Context, _ *Client, msg *protocol.Message) (*protocol.Message, error) {
	var req protocol.UserHelpResponse
	if err := msg.ParsePayload(&req); err != nil {
		return nil, err
	}

	if err := s.tasks.HelpResponse(req.Response); err != nil {
		return nil, err
	}
	return protocol.NewResponse(msg.ID, protocol.EventHelpResponseReceived, protocol.HelpResponseReceived{
		Message: "Guidance received, resuming the agent.",
	})
}

func (s *Service) handleHealthCheck(_ context.Context, _ *Client, msg *protocol.Message) (*protocol.Message, error) {
	return protocol.NewResponse(msg.ID, msg.Event, map[string]interface{}{
		"status":  "ok",
		"service": "browserai-server",
	})
}
