package chat

import (
	"sync"
	"time"
)

// Conversation is the append-only message log of one session. IDs are
// allocated from a counter owned by the conversation at append time, so
// concurrent appends never collide.
type Conversation struct {
	mu        sync.RWMutex
	sessionID string
	lastID    int64
	messages  []Message
}

// NewConversation returns a conversation seeded with the bot greeting.
func NewConversation(sessionID, greeting string) *Conversation {
	c := &Conversation{
		sessionID: sessionID,
		messages:  make([]Message, 0, 16),
	}
	c.Append(SenderBot, greeting, "")
	return c
}

// SessionID returns the owning session identifier.
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// Append stores a new message at the end of the log and returns it.
func (c *Conversation) Append(sender Sender, text, taskID string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastID++
	msg := Message{
		ID:        c.lastID,
		SessionID: c.sessionID,
		Text:      text,
		Sender:    sender,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// Messages returns a copy of the log in append order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copied := make([]Message, len(c.messages))
	copy(copied, c.messages)
	return copied
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}
