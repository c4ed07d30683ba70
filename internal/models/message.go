package models

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser   Sender = "User"
	SenderAI     Sender = "AI"
	SenderSystem Sender = "System"
)

// DeliveryState tracks a message through the optimistic-send lifecycle.
type DeliveryState string

const (
	DeliveryOptimistic DeliveryState = "optimistic"
	DeliveryConfirmed  DeliveryState = "confirmed"
	DeliveryFailed     DeliveryState = "failed"
)

// Message is one entry in a conversation's stream. Server-confirmed
// messages carry a server ID; optimistic entries use their correlation
// key as a provisional ID until the next snapshot supersedes them.
type Message struct {
	ID             string        `json:"id"`
	Sender         Sender        `json:"sender"`
	Body           string        `json:"message"`
	SentAt         time.Time     `json:"timestamp"`
	Pending        bool          `json:"pending,omitempty"`
	DeliveryState  DeliveryState `json:"delivery_state,omitempty"`
	CorrelationKey string        `json:"correlation_key,omitempty"`
}

// FromUser reports whether the message was authored by the local user.
func (m Message) FromUser() bool {
	return m.Sender == SenderUser
}
