package domain

import "time"

// Message sender roles. Every transcript entry is from one of the two.
const (
	FromUser = "user"
	FromBot  = "bot"
)

// Conversation is the client-side view of an interview chat. SessionID is
// the backend identifier; it is empty for conversations that exist only
// locally and are never synced.
type Conversation struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	SessionID string    `json:"sessionId,omitempty"`
	Last      string    `json:"last"`
	Updated   time.Time `json:"updated"`
}

// Synced reports whether the conversation is tracked by the backend.
func (c Conversation) Synced() bool {
	return c.SessionID != ""
}

// Message is a single transcript entry. Messages are append-only: once
// created they are never edited or reordered.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageMap holds each conversation's ordered transcript keyed by
// conversation id. A missing key is an empty transcript.
type MessageMap map[string][]Message
