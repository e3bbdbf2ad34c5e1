package types

import "time"

// Message represents a single message between two users.
// Messages are immutable once created; ids, timestamps and read flags
// are assigned by the authoritative data source.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Read       bool      `json:"read"`
}

// Conversation represents a two-party message thread
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	LastMessage  *Message `json:"last_message,omitempty"`
	UnreadCount  int      `json:"unread_count"`
}

// HasParticipant reports whether the given user takes part in the conversation
func (c *Conversation) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// MatchesPair reports whether the unordered {sender, receiver} pair equals
// the conversation's participant pair. Messages belong to exactly one
// conversation, determined by this pair.
func (c *Conversation) MatchesPair(senderID, receiverID string) bool {
	if len(c.Participants) != 2 {
		return false
	}
	a, b := c.Participants[0], c.Participants[1]
	return (a == senderID && b == receiverID) || (a == receiverID && b == senderID)
}
