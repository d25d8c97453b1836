// Package bus provides the in-process event bus used to fan events from
// the task manager, log capture, and stuck detector out to the gateway.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Well-known subjects.
const (
	// SubjectLogEvent carries protocol.LogEvent payloads.
	SubjectLogEvent = "logs.event"

	// SubjectTaskStatus carries protocol.TaskStatus snapshots.
	SubjectTaskStatus = "task.status"

	// SubjectTaskStarted carries start-acknowledgement payloads.
	SubjectTaskStarted = "task.started"

	// SubjectTaskResult carries terminal protocol.TaskResult payloads.
	SubjectTaskResult = "task.result"

	// SubjectAgentHelp carries protocol.AgentNeedsHelp payloads.
	SubjectAgentHelp = "task.help"
)

// Event represents a message on the event bus.
type Event struct {
	ID        string      `json:"id"`
	Subject   string      `json:"subject"`
	Source    string      `json:"source"` // component that produced the event
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`

	// Seq is the log-stream sequence assigned by the capture ring.
	// Zero for events outside the log stream.
	Seq uint64 `json:"seq,omitempty"`
}

// NewEvent creates a new event with a UUID and current timestamp.
func NewEvent(subject, source string, payload interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Subject:   subject,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus is the broadcast surface between server components.
//
// Delivery order matters: events published on a subject must reach each
// subscriber in publish order, so that status snapshots always precede
// the log events of the transition that produced them.
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern.
	// Patterns support NATS-style wildcards: * (one token) and > (rest).
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// Close closes the bus.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}
