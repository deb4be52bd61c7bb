package model

import "time"

// User is the public summary of a chat participant.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// ChatSession represents a named conversation between participants
type ChatSession struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"updated_at"`
	Participants   []User    `json:"participants"`
	IsActive       bool      `json:"is_active"`
}

// HasParticipant reports whether userID belongs to the session.
func (s ChatSession) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// SessionDetail is a session together with its message history.
type SessionDetail struct {
	ChatSession
	Messages      []Message `json:"messages"`
	LatestMessage *Message  `json:"latest_message"`
}

// Message represents a persisted chat message
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"chat_session"`
	Sender    User      `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// Payload builds the hydrated form of the message that is pushed to live connections.
func (m Message) Payload() MessagePayload {
	return MessagePayload{
		ID:      m.ID,
		Content: m.Content,
		Sender: SenderSummary{
			ID:       m.Sender.ID,
			Username: m.Sender.Username,
		},
		Timestamp: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		SessionID: m.SessionID,
	}
}
