package protocol

import (
	"encoding/json"
	"fmt"
)

// Level is the severity of a log event. Lowercase strings on the wire.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelResult  Level = "result"
)

// EventType classifies a log event. Lowercase strings on the wire.
type EventType string

const (
	EventTypeLog            EventType = "log"
	EventTypeAgentStart     EventType = "agent_start"
	EventTypeAgentStep      EventType = "agent_step"
	EventTypeAgentAction    EventType = "agent_action"
	EventTypeAgentResult    EventType = "agent_result"
	EventTypeAgentComplete  EventType = "agent_complete"
	EventTypeAgentError     EventType = "agent_error"
	EventTypeAgentPause     EventType = "agent_pause"
	EventTypeAgentResume    EventType = "agent_resume"
	EventTypeAgentStop      EventType = "agent_stop"
	EventTypeUserHelpNeeded EventType = "user_help_needed"
)

// LogEvent is one entry in the event stream. Immutable once emitted.
type LogEvent struct {
	Timestamp  Timestamp              `json:"timestamp"`
	Level      Level                  `json:"level"`
	EventType  EventType              `json:"event_type"`
	LoggerName string                 `json:"logger_name"`
	Message    string                 `json:"message"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SanitizeMetadata coerces metadata values into JSON-representable form.
// Values that cannot be marshaled are replaced by their string rendering
// and annotated so consumers can tell they were coerced.
func SanitizeMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if _, err := json.Marshal(v); err != nil {
			out[k] = fmt.Sprintf("%v", v)
			out[k+"_coerced"] = true
			continue
		}
		out[k] = v
	}
	return out
}

// TaskStatus is the authoritative state of the single task slot.
type TaskStatus struct {
	IsRunning   bool    `json:"is_running"`
	IsPaused    bool    `json:"is_paused"`
	HasAgent    bool    `json:"has_agent"`
	CurrentTask *string `json:"current_task"`
	CDPEndpoint *string `json:"cdp_endpoint"`
}

// StartTaskRequest is the payload of start_task and start_clarified_task.
type StartTaskRequest struct {
	Task        string `json:"task"`
	CDPEndpoint string `json:"cdp_endpoint,omitempty"`
	IsExtension bool   `json:"is_extension,omitempty"`
}

// TaskStarted acknowledges an accepted start request.
type TaskStarted struct {
	Message string `json:"message"`
}

// TaskActionResult acknowledges stop/pause/resume requests.
type TaskActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TaskResult is the terminal notification for a task.
type TaskResult struct {
	Task    string   `json:"task"`
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	History []string `json:"history,omitempty"`
}

// ChatMessage is the payload of a chat_message request.
type ChatMessage struct {
	Message string `json:"message"`
}

// ConversationMessage is one turn in a clarification dialog.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// Intent is the structured output of the clarification dialog.
type Intent struct {
	TaskDescription string  `json:"task_description"`
	IsReady         bool    `json:"is_ready"`
	Confidence      float64 `json:"confidence"`
}

// ChatResponse carries an assistant conversation turn and, when the
// dialog has produced an executable task, the extracted intent.
type ChatResponse struct {
	Role    string  `json:"role"`
	Content string  `json:"content"`
	Intent  *Intent `json:"intent,omitempty"`
}

// StuckReason identifies which trigger fired in the stuck detector.
type StuckReason string

const (
	StuckReasonRepeating           StuckReason = "REPEATING"
	StuckReasonStepTimeout         StuckReason = "STEP_TIMEOUT"
	StuckReasonNoProgress          StuckReason = "NO_PROGRESS"
	StuckReasonConsecutiveFailures StuckReason = "CONSECUTIVE_FAILURES"
	StuckReasonNone                StuckReason = "NONE"
)

// AgentNeedsHelp signals that the agent is paused awaiting guidance.
type AgentNeedsHelp struct {
	Reason           StuckReason `json:"reason"`
	Summary          string      `json:"summary"`
	AttemptedActions []string    `json:"attempted_actions"`
	DurationSeconds  float64     `json:"duration_seconds"`
	Suggestion       string      `json:"suggestion"`
}

// UserHelpResponse is the payload resolving a pending help wait.
type UserHelpResponse struct {
	Response string `json:"response"`
}

// HelpResponseReceived acknowledges a user_help_response.
type HelpResponseReceived struct {
	Message string `json:"message"`
}
