package chat

import "time"

// Session captures one widget instance and the persona answering in it.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}

// State reports whether a session still has replies in flight.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
)

// Submission is the result of accepting user input: the stored user message
// and the task that will produce the bot reply.
type Submission struct {
	TaskID  string  `json:"taskId"`
	Message Message `json:"message"`
}
