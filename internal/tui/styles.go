package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/chatbot/internal/model/chat"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#2563EB")).
			Padding(0, 1)

	userBubble = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	botBubble = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1F2937")).
			Background(lipgloss.Color("#E5E7EB")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#6B7280"))

	sendButtonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2563EB"))
)

// renderMessages lays out user messages on the right and bot messages on
// the left, each bubble at most two thirds of the width.
func renderMessages(messages []chat.Message, width int) string {
	if width <= 0 {
		width = 80
	}
	maxBubble := width * 2 / 3
	if maxBubble < 10 {
		maxBubble = width
	}

	rows := make([]string, 0, len(messages))
	for _, msg := range messages {
		style, align := botBubble, lipgloss.Left
		if msg.Sender == chat.SenderUser {
			style, align = userBubble, lipgloss.Right
		}

		bubble := style.Render(msg.Text)
		if lipgloss.Width(bubble) > maxBubble {
			bubble = style.Width(maxBubble).Render(msg.Text)
		}
		rows = append(rows, lipgloss.PlaceHorizontal(width, align, bubble))
	}
	return strings.Join(rows, "\n\n")
}
