package chatbot

import "time"

// MessageType identifies who authored a message within a conversation.
type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageBot    MessageType = "bot"
	MessageSystem MessageType = "system"
)

// Conversation is a logical thread of messages keyed by an
// externally supplied conversation id (e.g. from Telex.im).
type Conversation struct {
	ID              int64     `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	UserID          string    `json:"user_id,omitempty"`
	ChannelID       string    `json:"channel_id,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	LastInteraction time.Time `json:"last_interaction"`
	IsActive        bool      `json:"is_active"`
}

// Message is a single utterance in a conversation. Messages are
// immutable once created and totally ordered by insertion.
type Message struct {
	ID             int64                  `json:"id"`
	ConversationID int64                  `json:"-"`
	Type           MessageType            `json:"message_type"`
	Content        string                 `json:"content"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// TriggerRule is a stored (pattern, response) pair used for rule-based
// reply matching. Higher priority rules are evaluated first; equal
// priorities fall back to creation order.
type TriggerRule struct {
	ID             int64     `json:"id"`
	TriggerPattern string    `json:"trigger_pattern"`
	ResponseText   string    `json:"response_text"`
	IsRegex        bool      `json:"is_regex"`
	IsActive       bool      `json:"is_active"`
	Priority       int       `json:"priority"`
	UseCount       int       `json:"use_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
