package protocol

// Namespace is the single logical channel all core events travel on.
const Namespace = "/extension"

// Protocol constants shared by server and extension client.
const (
	// DefaultServerURL is where the extension connects unless configured.
	DefaultServerURL = "ws://localhost:5000"

	// MaxReconnectAttempts is the client reconnect budget.
	MaxReconnectAttempts = 5

	// ReconnectDelayMs is the delay between client reconnect attempts.
	ReconnectDelayMs = 1000

	// MaxLogs bounds the retained event ring on both sides.
	MaxLogs = 1000

	// ReplayWindow is the number of recent log events replayed to a
	// freshly connected client before any live events.
	ReplayWindow = 50
)

// Client -> server events.
const (
	EventExtensionConnect   = "extension_connect"
	EventGetStatus          = "get_status"
	EventStartTask          = "start_task"
	EventStartClarifiedTask = "start_clarified_task"
	EventStopTask           = "stop_task"
	EventPauseTask          = "pause_task"
	EventResumeTask         = "resume_task"
	EventChatMessage        = "chat_message"
	EventResetConversation  = "reset_conversation"
	EventUserHelpResponse   = "user_help_response"
	EventHealthCheck        = "health_check"
)

// Server -> client events.
const (
	EventStatus               = "status"
	EventLogEvent             = "log_event"
	EventTaskStarted          = "task_started"
	EventTaskActionResult     = "task_action_result"
	EventTaskResult           = "task_result"
	EventChatResponse         = "chat_response"
	EventConversationReset    = "conversation_reset"
	EventAgentNeedsHelp       = "agent_needs_help"
	EventHelpResponseReceived = "help_response_received"
	EventError                = "error"
)
