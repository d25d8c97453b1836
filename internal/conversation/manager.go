// Package conversation turns free-form chat into executable task
// intents. Each client session holds its own dialog history; an LLM
// clarifies the goal until it can emit the ready markers, which are
// parsed into a structured intent.
package conversation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/config"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

const (
	roleSystem    = "system"
	roleUser      = "user"
	roleAssistant = "assistant"
)

// systemPrompt shapes the clarification dialog. The markers it mandates
// are what parseIntent looks for.
const systemPrompt = `You are a browser automation assistant. The user describes a task they want automated in their browser.

Your job is to make sure the task is specific enough to execute. Ask short clarifying questions when the goal is vague (missing website, product, or success criteria). Keep replies to a few sentences.

Once the task is clear, reply with the line "READY TO START" followed by a line of the form:
TASK: <one clear imperative sentence describing the task>

If you are fully certain the task will succeed as written, add a final line:
CONFIDENCE: HIGH

Do not emit READY TO START until you are confident the task is executable as written.`

// greeting opens every fresh conversation.
const greeting = "Hi! Tell me what you'd like your browser to do and I'll get a task ready."

// fallbackReply is returned whenever the LLM is unavailable or errors.
const fallbackReply = "Sorry, I'm having trouble thinking right now. Please try again in a moment, or state your task in one sentence and press start."

// Manager holds per-session clarification dialogs. Messages within one
// session are processed strictly in order; sessions are independent.
type Manager struct {
	client  ChatClient
	timeout time.Duration
	logger  *logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	history []protocol.ConversationMessage
}

// NewManager creates a conversation manager backed by client.
func NewManager(client ChatClient, cfg config.LLMConfig, log *logger.Logger) *Manager {
	return &Manager{
		client:   client,
		timeout:  cfg.Timeout(),
		logger:   log.WithFields(zap.String("component", "conversation")),
		sessions: make(map[string]*session),
	}
}

// HandleMessage appends the user's message to the session dialog, asks
// the LLM for the next turn, and parses any ready markers into an
// intent. The returned intent is nil until the reply is ready. LLM
// failure degrades to a canned apology without losing the user's
// message.
func (m *Manager) HandleMessage(ctx context.Context, sessionID, text string) protocol.ChatResponse {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, protocol.ConversationMessage{
		Role:      roleUser,
		Content:   text,
		Timestamp: protocol.Now(),
	})

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// The system prompt is prepended per call; the stored history holds
	// only the visible dialog, greeting included.
	messages := make([]protocol.ConversationMessage, 0, len(s.history)+1)
	messages = append(messages, protocol.ConversationMessage{
		Role:      roleSystem,
		Content:   systemPrompt,
		Timestamp: protocol.Now(),
	})
	messages = append(messages, s.history...)

	reply, err := m.client.Chat(callCtx, messages)
	if err != nil {
		if err != ErrDisabled {
			m.logger.Warn("LLM call failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		s.history = append(s.history, protocol.ConversationMessage{
			Role:      roleAssistant,
			Content:   fallbackReply,
			Timestamp: protocol.Now(),
		})
		return protocol.ChatResponse{Role: roleAssistant, Content: fallbackReply}
	}

	s.history = append(s.history, protocol.ConversationMessage{
		Role:      roleAssistant,
		Content:   reply,
		Timestamp: protocol.Now(),
	})

	intent := parseIntent(reply)
	content := displayContent(reply)
	if content == "" {
		content = reply
	}
	return protocol.ChatResponse{Role: roleAssistant, Content: content, Intent: intent}
}

// Reset discards the session's history and returns the fresh greeting.
// Afterwards the history holds exactly the greeting turn.
func (m *Manager) Reset(sessionID string) protocol.ChatResponse {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history[:0], greetingTurn())
	return protocol.ChatResponse{Role: roleAssistant, Content: greeting}
}

// History returns a copy of the session's visible dialog.
func (m *Manager) History(sessionID string) []protocol.ConversationMessage {
	s := m.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ConversationMessage(nil), s.history...)
}

// Remove drops a session entirely, typically on client disconnect.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// session returns the dialog for sessionID, creating it with the
// greeting turn on first use.
func (m *Manager) session(sessionID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &session{history: []protocol.ConversationMessage{greetingTurn()}}
		m.sessions[sessionID] = s
	}
	return s
}

func greetingTurn() protocol.ConversationMessage {
	return protocol.ConversationMessage{
		Role:      roleAssistant,
		Content:   greeting,
		Timestamp: protocol.Now(),
	}
}
