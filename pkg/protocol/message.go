// Package protocol defines the wire protocol spoken on the /extension
// namespace: the message envelope, event names, and the payload shapes
// exchanged between the extension client and the orchestration server.
package protocol

import (
	"encoding/json"
)

// MessageType represents the type of a protocol message.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
)

// Message is the base envelope for all messages on the /extension channel.
// Field names are snake_case on the wire; timestamps carry millisecond
// precision (see Timestamp).
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`
}

// ParsePayload unmarshals the message payload into v.
func (m *Message) ParsePayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// NewRequest creates a new request message.
func NewRequest(id, event string, payload interface{}) (*Message, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      MessageTypeRequest,
		Event:     event,
		Payload:   data,
		Timestamp: Now(),
	}, nil
}

// NewResponse creates a new response message replying to request id.
func NewResponse(id, event string, payload interface{}) (*Message, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      MessageTypeResponse,
		Event:     event,
		Payload:   data,
		Timestamp: Now(),
	}, nil
}

// NewNotification creates a new server push notification.
func NewNotification(event string, payload interface{}) (*Message, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      MessageTypeNotification,
		Event:     event,
		Payload:   data,
		Timestamp: Now(),
	}, nil
}

// NewError creates a new error message. All errors travel under the
// error event regardless of the event that provoked them; the id ties
// the error back to the originating request when there is one.
func NewError(id, message string, details map[string]interface{}) (*Message, error) {
	data, err := marshalPayload(ErrorPayload{
		Message: message,
		Details: details,
	})
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      MessageTypeError,
		Event:     EventError,
		Payload:   data,
		Timestamp: Now(),
	}, nil
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

// ErrorPayload is the payload of an error message.
type ErrorPayload struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
