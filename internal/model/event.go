package model

import (
	"encoding/json"
	"fmt"
)

// EventKind is the discriminator written in the "type" field of every outbound frame.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventError   EventKind = "error"
)

// Error codes carried by error frames.
const (
	ErrCodeMalformed   = "malformed"
	ErrCodeValidation  = "validation"
	ErrCodeNotFound    = "not_found"
	ErrCodePersistence = "persistence"
	ErrCodeInternal    = "internal"
)

// SenderSummary identifies the author of a delivered message
type SenderSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// MessagePayload is the fully-hydrated message delivered to subscribers
type MessagePayload struct {
	ID        int64         `json:"id"`
	Content   string        `json:"content"`
	Sender    SenderSummary `json:"sender"`
	Timestamp string        `json:"timestamp"`
	SessionID int64         `json:"session_id"`
}

// ErrorPayload describes a failure reported to a single connection
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is an outbound frame. Exactly one of the payload fields is set,
// matching Kind.
type Event struct {
	Kind    EventKind
	Message *MessagePayload
	Error   *ErrorPayload
}

// NewMessageEvent wraps a delivered chat message.
func NewMessageEvent(p MessagePayload) Event {
	return Event{Kind: EventMessage, Message: &p}
}

// NewErrorEvent wraps an error reported to the originating connection.
func NewErrorEvent(code, msg string) Event {
	return Event{Kind: EventError, Error: &ErrorPayload{Code: code, Message: msg}}
}

// MarshalJSON encodes the event as {"type": kind, kind: payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventMessage:
		if e.Message == nil {
			return nil, fmt.Errorf("message event without payload")
		}
		return json.Marshal(struct {
			Type    EventKind       `json:"type"`
			Message *MessagePayload `json:"message"`
		}{e.Kind, e.Message})
	case EventError:
		if e.Error == nil {
			return nil, fmt.Errorf("error event without payload")
		}
		return json.Marshal(struct {
			Type  EventKind     `json:"type"`
			Error *ErrorPayload `json:"error"`
		}{e.Kind, e.Error})
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}

// UnmarshalJSON decodes a frame produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type    EventKind       `json:"type"`
		Message *MessagePayload `json:"message"`
		Error   *ErrorPayload   `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case EventMessage:
		*e = Event{Kind: raw.Type, Message: raw.Message}
	case EventError:
		*e = Event{Kind: raw.Type, Error: raw.Error}
	default:
		return fmt.Errorf("unknown event kind %q", raw.Type)
	}
	return nil
}

// InboundFrame is one client-to-server WebSocket message
type InboundFrame struct {
	Message  *string `json:"message" validate:"required"`
	SenderID string  `json:"sender_id"`
}

// SendMessageRequest is the body of POST /api/send-message/
type SendMessageRequest struct {
	SessionID int64  `json:"session_id" validate:"required,gt=0"`
	Content   string `json:"content" validate:"required"`
}
