package protocol

import (
	"encoding/json"

	"github.com/sparringhq/sparring/internal/models"
)

// EventType identifies the type of WebSocket event.
type EventType string

const (
	// Client -> Server (session channel)
	TypeJoin          EventType = "join"
	TypeDebateMessage EventType = "debateMessage"
	TypeTyping        EventType = "typing"
	TypeStopTyping    EventType = "stopTyping"

	// Server -> Client (session channel)
	TypeMessages      EventType = "messages"
	TypeError         EventType = "error"
	TypeMessageFailed EventType = "messageFailed"

	// Server -> Client (directory channel, no payload)
	TypeChatCreated EventType = "chatCreated"
	TypeChatUpdated EventType = "chatUpdated"
	TypeChatDeleted EventType = "chatDeleted"
)

// Envelope wraps all WebSocket events with a type field.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinEvent subscribes the session channel to a conversation's stream.
type JoinEvent struct {
	DebateID string `json:"debateId"`
}

// DebateMessageEvent is sent by the client to post a message. Mood,
// topic and stand accompany every send so the server can prompt the AI
// without a debate lookup.
type DebateMessageEvent struct {
	DebateID       string   `json:"debateId"`
	Msg            string   `json:"msg"`
	Mood           []string `json:"mood,omitempty"`
	Topic          string   `json:"topic"`
	Stand          string   `json:"stand"`
	CorrelationKey string   `json:"correlationKey,omitempty"`
}

// TypingEvent signals local typing activity on a conversation. The same
// shape is used for both typing and stopTyping.
type TypingEvent struct {
	DebateID string `json:"debateId"`
}

// MessagesEvent is a snapshot push: the full current stream for a
// conversation. Seq increases monotonically per conversation so clients
// can discard stale snapshots delivered out of order across reconnects.
type MessagesEvent struct {
	DebateID string           `json:"debateId"`
	Seq      uint64           `json:"seq,omitempty"`
	Stream   []models.Message `json:"stream"`
}

// ErrorEvent is sent by the server when a stream-level error occurs.
type ErrorEvent struct {
	Reason string `json:"reason"`
}

// MessageFailedEvent reports that a posted message was rejected.
type MessageFailedEvent struct {
	CorrelationKey string `json:"correlationKey,omitempty"`
	Reason         string `json:"reason"`
}

// NewEnvelope creates an envelope with the given type and data.
func NewEnvelope(eventType EventType, data interface{}) (*Envelope, error) {
	if data == nil {
		return &Envelope{Type: eventType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type: eventType,
		Data: raw,
	}, nil
}

// ParseEnvelope parses a JSON event into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
