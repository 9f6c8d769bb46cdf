package chat

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is a single turn of a conversation. It is never mutated after it
// has been appended.
type Message struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	TaskID    string    `json:"taskId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
