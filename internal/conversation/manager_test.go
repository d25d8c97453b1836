package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/config"
	"github.com/Sathursan-S/Browser.AI-sub001/internal/common/logger"
	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return log
}

// scriptedClient replays canned replies and records what it was asked.
type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	seen    [][]protocol.ConversationMessage
}

func (c *scriptedClient) Chat(ctx context.Context, messages []protocol.ConversationMessage) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := append([]protocol.ConversationMessage(nil), messages...)
	c.seen = append(c.seen, copied)

	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("script exhausted")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func (c *scriptedClient) lastSeen() []protocol.ConversationMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seen) == 0 {
		return nil
	}
	return c.seen[len(c.seen)-1]
}

func newTestManager(t *testing.T, client ChatClient) *Manager {
	return NewManager(client, config.LLMConfig{Model: "gpt-4o-mini", TimeoutSecs: 5}, newTestLogger(t))
}

func TestManager_ClarifyThenReady(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"Which store should I use?",
		"Got it.\nREADY TO START\nTASK: Buy headphones on the usual store",
	}}
	m := newTestManager(t, client)
	ctx := context.Background()

	first := m.HandleMessage(ctx, "session-1", "buy headphones")
	assert.Equal(t, "assistant", first.Role)
	assert.Nil(t, first.Intent, "clarifying turn must carry no intent")

	second := m.HandleMessage(ctx, "session-1", "the usual store")
	require.NotNil(t, second.Intent)
	assert.True(t, second.Intent.IsReady)
	assert.Equal(t, "Buy headphones on the usual store", second.Intent.TaskDescription)
	assert.Equal(t, 0.9, second.Intent.Confidence, "no explicit confidence marker in the reply")

	// The LLM sees the system prompt plus the visible dialog: greeting,
	// 2 user turns, and 1 assistant turn on the second call.
	history := client.lastSeen()
	require.Len(t, history, 5)
	assert.Equal(t, "system", history[0].Role)
	assert.Equal(t, greeting, history[1].Content)
}

func TestManager_ConfidenceMarkerReachesIntent(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"READY TO START\nTASK: Buy headphones\nCONFIDENCE: HIGH",
	}}
	m := newTestManager(t, client)

	resp := m.HandleMessage(context.Background(), "session-1", "buy headphones on amazon")
	require.NotNil(t, resp.Intent)
	assert.Equal(t, 1.0, resp.Intent.Confidence)
}

func TestManager_LLMFailureFallsBack(t *testing.T) {
	client := &scriptedClient{err: errors.New("rate limited")}
	m := newTestManager(t, client)

	resp := m.HandleMessage(context.Background(), "session-1", "buy headphones")
	assert.Equal(t, "assistant", resp.Role)
	assert.Equal(t, fallbackReply, resp.Content)
	assert.Nil(t, resp.Intent)
}

func TestManager_DisabledClientFallsBack(t *testing.T) {
	m := newTestManager(t, NewChatClient(config.LLMConfig{}))

	resp := m.HandleMessage(context.Background(), "session-1", "buy headphones")
	assert.Equal(t, fallbackReply, resp.Content)
}

func TestManager_ResetLeavesOnlyTheGreeting(t *testing.T) {
	client := &scriptedClient{replies: []string{"Clarify?", "Clarify again?"}}
	m := newTestManager(t, client)
	ctx := context.Background()

	m.HandleMessage(ctx, "session-1", "first message")

	resp := m.Reset("session-1")
	assert.Equal(t, greeting, resp.Content)

	history := m.History("session-1")
	require.Len(t, history, 1, "reset should leave exactly the greeting")
	assert.Equal(t, "assistant", history[0].Role)
	assert.Equal(t, greeting, history[0].Content)

	m.HandleMessage(ctx, "session-1", "second message")
	// system prompt + greeting + the one post-reset user message
	assert.Len(t, client.lastSeen(), 3, "reset should clear the dialog")
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	client := &scriptedClient{replies: []string{"a?", "b?"}}
	m := newTestManager(t, client)
	ctx := context.Background()

	m.HandleMessage(ctx, "session-a", "task a")
	m.HandleMessage(ctx, "session-b", "task b")

	history := client.lastSeen()
	require.Len(t, history, 3, "second session starts a fresh dialog")
	assert.Equal(t, "task b", history[2].Content)

	m.Remove("session-a")
	m.mu.Lock()
	_, exists := m.sessions["session-a"]
	m.mu.Unlock()
	assert.False(t, exists)
}
