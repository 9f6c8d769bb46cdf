// Package tui renders the chat widget in a terminal: a header, a scrollable
// message list and an input line.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/model/chat"
	"github.com/zhouzirui/chatbot/internal/model/persona"
	chatService "github.com/zhouzirui/chatbot/internal/service/chat"
	"github.com/zhouzirui/chatbot/pkg/logger"
)

const (
	placeholder = "Type your message..."
	sendLabel   = "[ Send ]"
	// header, status line and input line
	chromeHeight = 3
)

// scrollKeys keeps the message list off the printable keys, which belong to
// the input line.
func scrollKeys() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		Down:     key.NewBinding(key.WithKeys("down")),
		Up:       key.NewBinding(key.WithKeys("up")),
	}
}

type appendedMsg chat.Message

type closedMsg struct{}

// Model is the bubbletea model of the widget. It owns one chat session for
// its whole lifetime; Close releases it.
type Model struct {
	svc     *chatService.Service
	session chat.Session
	title   string
	log     *zap.Logger

	updates <-chan chat.Message
	cancel  func()

	messages []chat.Message
	pending  map[string]struct{}

	viewport viewport.Model
	input    textinput.Model
	width    int
	ready    bool
}

// New opens a session for personaID and subscribes to it.
func New(ctx context.Context, svc *chatService.Service, personas persona.Store, personaID string, log *zap.Logger) (*Model, error) {
	session, err := svc.CreateSession(ctx, personaID)
	if err != nil {
		return nil, err
	}

	updates, cancel, err := svc.Subscribe(session.ID)
	if err != nil {
		return nil, err
	}

	messages, err := svc.LoadTranscript(ctx, session.ID)
	if err != nil {
		cancel()
		return nil, err
	}

	title := "Chat Bot"
	if p, ok := personas.FindByID(session.PersonaID); ok && p.Title != "" {
		title = p.Title
	}

	input := textinput.New()
	input.Placeholder = placeholder
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Focus()

	return &Model{
		svc:      svc,
		session:  session,
		title:    title,
		log:      logger.OrNop(log).Named("tui"),
		updates:  updates,
		cancel:   cancel,
		messages: messages,
		pending:  make(map[string]struct{}),
		input:    input,
	}, nil
}

// Close unsubscribes and closes the session.
func (m *Model) Close() {
	m.cancel()
	if err := m.svc.CloseSession(context.Background(), m.session.ID); err != nil && !errors.Is(err, chatService.ErrSessionNotFound) {
		m.log.Warn("close session failed", zap.Error(err))
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForMessage())
}

func (m *Model) waitForMessage() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return appendedMsg(msg)
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			m.submit()
			return m, nil
		}

	case tea.MouseMsg:
		if m.onSendButton(msg) {
			m.submit()
			return m, nil
		}

	case appendedMsg:
		m.appendMessage(chat.Message(msg))
		return m, m.waitForMessage()

	case closedMsg:
		return m, tea.Quit
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit sends the input text. Blank input is ignored and left in place.
func (m *Model) submit() {
	submission, err := m.svc.Submit(context.Background(), m.session.ID, m.input.Value())
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return
	case err != nil:
		m.log.Warn("submit failed", zap.Error(err))
		return
	}

	m.input.Reset()
	m.pending[submission.TaskID] = struct{}{}
}

func (m *Model) appendMessage(msg chat.Message) {
	if n := len(m.messages); n > 0 && msg.ID <= m.messages[n-1].ID {
		return
	}
	m.messages = append(m.messages, msg)
	if msg.Sender == chat.SenderBot && msg.TaskID != "" {
		delete(m.pending, msg.TaskID)
	}
	m.refresh()
}

func (m *Model) resize(width, height int) {
	m.width = width
	vpHeight := height - chromeHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.viewport.KeyMap = scrollKeys()
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(1, width-lipgloss.Width(m.input.Prompt)-lipgloss.Width(sendLabel)-2)
	m.refresh()
}

// refresh re-renders the message list and scrolls to the newest message.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderMessages(m.messages, m.width))
	m.viewport.GotoBottom()
}

// onSendButton reports whether a mouse release landed on the send control,
// which sits at the right end of the last line.
func (m *Model) onSendButton(msg tea.MouseMsg) bool {
	if !m.ready || msg.Action != tea.MouseActionRelease {
		return false
	}
	if msg.Button != tea.MouseButtonLeft && msg.Button != tea.MouseButtonNone {
		return false
	}
	row := lipgloss.Height(m.header()) + m.viewport.Height + 1
	left := m.width - lipgloss.Width(sendLabel)
	return msg.Y == row && msg.X >= left && msg.X < m.width
}

func (m *Model) header() string {
	return headerStyle.Width(m.width).Render(m.title)
}

// AwaitingResponse reports whether a submitted message still waits for its reply.
func (m *Model) AwaitingResponse() bool {
	return len(m.pending) > 0
}

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	status := ""
	if m.AwaitingResponse() {
		status = statusStyle.Render("typing...")
	}

	inputLine := lipgloss.PlaceHorizontal(m.width-lipgloss.Width(sendLabel), lipgloss.Left, m.input.View()) +
		sendButtonStyle.Render(sendLabel)

	return strings.Join([]string{
		m.header(),
		m.viewport.View(),
		status,
		inputLine,
	}, "\n")
}
