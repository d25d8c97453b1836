package extension

import (
	"encoding/json"
	"sync"

	"github.com/Sathursan-S/Browser.AI-sub001/pkg/protocol"
)

// Session-scoped keys cache the active session so a reopened popup or a
// sibling tab can render the last known view before the server's first
// push arrives. The settings key is a separate namespace meant for the
// embedder's synced storage area, so it follows the user across
// devices.
const (
	sessionStatusKey       = "browserai.session.task_status"
	sessionCDPKey          = "browserai.session.cdp_endpoint"
	sessionTaskKey         = "browserai.session.last_task"
	sessionConversationKey = "browserai.session.conversation"
	sessionIntentKey       = "browserai.session.intent"

	settingsKey = "browserai.settings.v1"
)

// Settings is the cross-device user configuration.
type Settings struct {
	ServerURL            string `json:"server_url"`
	MaxReconnectAttempts int    `json:"max_reconnect_attempts"`
	ReconnectDelayMs     int    `json:"reconnect_delay_ms"`
	MaxLogs              int    `json:"max_logs"`
	Notifications        bool   `json:"notifications"`
}

// DefaultSettings returns the protocol defaults.
func DefaultSettings() Settings {
	return Settings{
		ServerURL:            protocol.DefaultServerURL,
		MaxReconnectAttempts: protocol.MaxReconnectAttempts,
		ReconnectDelayMs:     protocol.ReconnectDelayMs,
		MaxLogs:              protocol.MaxLogs,
		Notifications:        true,
	}
}

// LoadSettings reads the settings namespace, falling back to defaults
// when absent or unreadable.
func LoadSettings(store Store) Settings {
	raw, ok := store.Get(settingsKey)
	if !ok {
		return DefaultSettings()
	}
	settings := DefaultSettings()
	if json.Unmarshal([]byte(raw), &settings) != nil {
		return DefaultSettings()
	}
	return settings
}

// SaveSettings writes the settings namespace.
func SaveSettings(store Store, settings Settings) {
	if data, err := json.Marshal(settings); err == nil {
		store.Set(settingsKey, string(data))
	}
}

// StateManager keeps the client's view of the active session. The
// server is authoritative for task status: every push overwrites the
// local view and is mirrored into the store, where sibling tabs observe
// it. There is no optimistic local write path; buttons stay in their
// pre-click state until the server's status lands.
type StateManager struct {
	mu           sync.RWMutex
	status       protocol.TaskStatus
	conversation []protocol.ConversationMessage
	intent       *protocol.Intent

	store     Store
	observers []func(protocol.TaskStatus)

	// applying suppresses the store observer while this manager is
	// itself writing, so a tab does not echo its own update.
	applying bool
}

// NewStateManager creates a state manager bound to store, seeded from
// the persisted session snapshot.
func NewStateManager(store Store) *StateManager {
	m := &StateManager{store: store}

	if raw, ok := store.Get(sessionStatusKey); ok {
		var status protocol.TaskStatus
		if json.Unmarshal([]byte(raw), &status) == nil {
			m.status = status
		}
	}
	if raw, ok := store.Get(sessionConversationKey); ok {
		var conversation []protocol.ConversationMessage
		if json.Unmarshal([]byte(raw), &conversation) == nil {
			m.conversation = conversation
		}
	}
	if raw, ok := store.Get(sessionIntentKey); ok {
		var intent protocol.Intent
		if json.Unmarshal([]byte(raw), &intent) == nil {
			m.intent = &intent
		}
	}

	store.Watch(m.onStoreChange)
	return m
}

// Current returns the current view of the task status.
func (m *StateManager) Current() protocol.TaskStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Conversation returns the cached dialog of the active session.
func (m *StateManager) Conversation() []protocol.ConversationMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]protocol.ConversationMessage(nil), m.conversation...)
}

// Intent returns the cached intent, nil while the dialog is clarifying.
func (m *StateManager) Intent() *protocol.Intent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.intent == nil {
		return nil
	}
	intent := *m.intent
	return &intent
}

// Observe registers a callback fired on every status change.
func (m *StateManager) Observe(fn func(protocol.TaskStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// ApplyServerStatus reconciles a server push. This is the only write
// path for status; the result is mirrored into the store for other
// tabs, along with the CDP endpoint and task description it carries.
func (m *StateManager) ApplyServerStatus(status protocol.TaskStatus) {
	m.apply(status, true)
}

// SetConversation caches the active session's dialog.
func (m *StateManager) SetConversation(messages []protocol.ConversationMessage) {
	m.mu.Lock()
	m.conversation = append([]protocol.ConversationMessage(nil), messages...)
	m.applying = true
	m.mu.Unlock()

	if data, err := json.Marshal(messages); err == nil {
		m.store.Set(sessionConversationKey, string(data))
	}
	m.clearApplying()
}

// SetIntent caches the parsed intent. Clarifying turns carry none, so
// nil is ignored and the last ready intent survives until overwritten.
func (m *StateManager) SetIntent(intent *protocol.Intent) {
	if intent == nil {
		return
	}
	m.mu.Lock()
	copied := *intent
	m.intent = &copied
	m.applying = true
	m.mu.Unlock()

	if data, err := json.Marshal(intent); err == nil {
		m.store.Set(sessionIntentKey, string(data))
	}
	m.clearApplying()
}

func (m *StateManager) apply(status protocol.TaskStatus, mirror bool) {
	m.mu.Lock()
	m.status = status
	observers := make([]func(protocol.TaskStatus), len(m.observers))
	copy(observers, m.observers)
	if mirror {
		m.applying = true
	}
	m.mu.Unlock()

	if mirror {
		if data, err := json.Marshal(status); err == nil {
			m.store.Set(sessionStatusKey, string(data))
		}
		if status.CDPEndpoint != nil {
			m.store.Set(sessionCDPKey, *status.CDPEndpoint)
		}
		if status.CurrentTask != nil {
			m.store.Set(sessionTaskKey, *status.CurrentTask)
		}
		m.clearApplying()
	}

	for _, fn := range observers {
		fn(status)
	}
}

func (m *StateManager) clearApplying() {
	m.mu.Lock()
	m.applying = false
	m.mu.Unlock()
}

// onStoreChange picks up session state written by a sibling tab.
func (m *StateManager) onStoreChange(key, value string) {
	m.mu.RLock()
	applying := m.applying
	m.mu.RUnlock()
	if applying {
		return
	}

	switch key {
	case sessionStatusKey:
		var status protocol.TaskStatus
		if json.Unmarshal([]byte(value), &status) == nil {
			m.apply(status, false)
		}
	case sessionConversationKey:
		var conversation []protocol.ConversationMessage
		if json.Unmarshal([]byte(value), &conversation) == nil {
			m.mu.Lock()
			m.conversation = conversation
			m.mu.Unlock()
		}
	case sessionIntentKey:
		var intent protocol.Intent
		if json.Unmarshal([]byte(value), &intent) == nil {
			m.mu.Lock()
			m.intent = &intent
			m.mu.Unlock()
		}
	}
}

// Bind wires a client's pushes into this manager.
func (m *StateManager) Bind(callbacks *Callbacks) {
	prevStatus := callbacks.OnStatus
	callbacks.OnStatus = func(status protocol.TaskStatus) {
		m.ApplyServerStatus(status)
		if prevStatus != nil {
			prevStatus(status)
		}
	}

	prevChat := callbacks.OnChatResponse
	callbacks.OnChatResponse = func(resp protocol.ChatResponse) {
		m.SetIntent(resp.Intent)
		if prevChat != nil {
			prevChat(resp)
		}
	}
}
