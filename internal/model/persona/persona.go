package persona

// DefaultID identifies the persona used when a session does not ask for one.
const DefaultID = "assistant"

// Persona captures the bot profile shown by the widget.
type Persona struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	OpeningLine string `json:"openingLine"`
	Description string `json:"description,omitempty"`
}

// Seed provides the built-in bot profile.
func Seed() []Persona {
	return []Persona{
		{
			ID:          DefaultID,
			Name:        "Bot",
			Title:       "Chat Bot",
			OpeningLine: "Hello! How can I help you today?",
			Description: "Answers greetings, small talk and farewells, and echoes everything else.",
		},
	}
}
