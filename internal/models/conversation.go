package models

import "time"

// Stance is the AI's assigned position on a debate topic.
type Stance string

const (
	StanceFor     Stance = "for"
	StanceAgainst Stance = "against"
	StanceNeutral Stance = "neutral"
)

// Conversation represents one debate and its sidebar summary.
type Conversation struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	TopicSummary   string    `json:"topic_summary"`
	MoodTags       []string  `json:"mood_tags,omitempty"`
	Stance         Stance    `json:"stance"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Preview is the sidebar rendering of a conversation: the last message
// snippet plus a humanized activity time, filled in by the directory.
type Preview struct {
	Conversation
	LastMessage  string `json:"last_message,omitempty"`
	RelativeTime string `json:"relative_time,omitempty"`
}
