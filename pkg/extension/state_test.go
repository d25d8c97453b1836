package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

func strPtr(s string) *string { return &s }

func TestStateManager_ServerStatusIsSoleWritePath(t *testing.T) {
	store := NewMemoryStore()
	m := NewStateManager(store)

	m.ApplyServerStatus(protocol.TaskStatus{
		IsRunning:   true,
		IsPaused:    false,
		HasAgent:    true,
		CurrentTask: strPtr("buy headphones"),
	})

	got := m.Current()
	assert.True(t, got.IsRunning)
	assert.False(t, got.IsPaused)
	require.NotNil(t, got.CurrentTask)
	assert.Equal(t, "buy headphones", *got.CurrentTask)
}

func TestStateManager_ServerPushOverridesStaleCache(t *testing.T) {
	store := NewMemoryStore()
	store.Set(sessionStatusKey, `{"is_running":true,"is_paused":true,"has_agent":true}`)

	m := NewStateManager(store)
	require.True(t, m.Current().IsPaused, "cached snapshot seeds the view")

	m.ApplyServerStatus(protocol.TaskStatus{IsRunning: true, IsPaused: false, HasAgent: true})

	assert.False(t, m.Current().IsPaused, "server push overrides the cached snapshot")
}

func TestStateManager_MirrorsSessionKeys(t *testing.T) {
	store := NewMemoryStore()
	m := NewStateManager(store)

	m.ApplyServerStatus(protocol.TaskStatus{
		IsRunning:   true,
		CurrentTask: strPtr("buy headphones"),
		CDPEndpoint: strPtr("ws://localhost:9222/devtools"),
	})

	cdp, ok := store.Get(sessionCDPKey)
	require.True(t, ok)
	assert.Equal(t, "ws://localhost:9222/devtools", cdp)

	task, ok := store.Get(sessionTaskKey)
	require.True(t, ok)
	assert.Equal(t, "buy headphones", task)
}

func TestStateManager_CrossTabSync(t *testing.T) {
	store := NewMemoryStore()
	tabA := NewStateManager(store)
	tabB := NewStateManager(store)

	var observed []protocol.TaskStatus
	tabB.Observe(func(status protocol.TaskStatus) {
		observed = append(observed, status)
	})

	tabA.ApplyServerStatus(protocol.TaskStatus{IsRunning: true, HasAgent: true})

	got := tabB.Current()
	assert.True(t, got.IsRunning)
	assert.True(t, got.HasAgent)
	assert.Len(t, observed, 1)
}

func TestStateManager_SeedsFromStore(t *testing.T) {
	store := NewMemoryStore()
	first := NewStateManager(store)
	first.ApplyServerStatus(protocol.TaskStatus{IsRunning: true})
	first.SetConversation([]protocol.ConversationMessage{
		{Role: "assistant", Content: "Hi!"},
		{Role: "user", Content: "buy headphones"},
	})
	first.SetIntent(&protocol.Intent{TaskDescription: "buy headphones", IsReady: true, Confidence: 0.9})

	// A freshly opened tab sees the whole persisted session.
	second := NewStateManager(store)
	assert.True(t, second.Current().IsRunning)

	conversation := second.Conversation()
	require.Len(t, conversation, 2)
	assert.Equal(t, "buy headphones", conversation[1].Content)

	intent := second.Intent()
	require.NotNil(t, intent)
	assert.True(t, intent.IsReady)
	assert.Equal(t, 0.9, intent.Confidence)
}

func TestStateManager_IgnoresUnrelatedKeys(t *testing.T) {
	store := NewMemoryStore()
	m := NewStateManager(store)
	m.ApplyServerStatus(protocol.TaskStatus{IsRunning: true})

	store.Set("browserai.unrelated", "value")

	assert.True(t, m.Current().IsRunning)
}

func TestSettings_RoundTripAndDefaults(t *testing.T) {
	store := NewMemoryStore()

	settings := LoadSettings(store)
	assert.Equal(t, protocol.DefaultServerURL, settings.ServerURL)
	assert.Equal(t, protocol.MaxReconnectAttempts, settings.MaxReconnectAttempts)
	assert.True(t, settings.Notifications)

	settings.ServerURL = "ws://example.com:5000"
	settings.Notifications = false
	SaveSettings(store, settings)

	loaded := LoadSettings(store)
	assert.Equal(t, "ws://example.com:5000", loaded.ServerURL)
	assert.False(t, loaded.Notifications)
	assert.Equal(t, protocol.MaxLogs, loaded.MaxLogs)
}

func TestMemoryStore_Watch(t *testing.T) {
	store := NewMemoryStore()

	var keys []string
	store.Watch(func(key, value string) {
		keys = append(keys, key)
	})

	store.Set("a", "1")
	store.Set("b", "2")

	assert.Equal(t, []string{"a", "b"}, keys)

	v, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}
