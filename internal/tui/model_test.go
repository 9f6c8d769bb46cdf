package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zhouzirui/chatbot/internal/analysis/reply"
	"github.com/zhouzirui/chatbot/internal/model/chat"
	"github.com/zhouzirui/chatbot/internal/model/persona"
	chatService "github.com/zhouzirui/chatbot/internal/service/chat"
)

// next blocks until the subscription yields and feeds the result to the model.
func next(m *Model) tea.Msg {
	msg := m.waitForMessage()()
	m.Update(msg)
	return msg
}

var _ = Describe("Model", func() {
	var (
		svc      *chatService.Service
		personas *persona.MemoryStore
		m        *Model
	)

	BeforeEach(func() {
		personas = persona.NewMemoryStore(persona.Seed())
		svc = chatService.NewService(personas, chatService.Options{ReplyDelay: 10 * time.Millisecond})

		var err error
		m, err = New(context.Background(), svc, personas, "", nil)
		Expect(err).NotTo(HaveOccurred())

		m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	})

	AfterEach(func() {
		svc.Wait()
		m.Close()
	})

	Describe("initial state", func() {
		It("shows the header and the seeded greeting", func() {
			view := m.View()

			Expect(view).To(ContainSubstring("Chat Bot"))
			Expect(view).To(ContainSubstring("Hello! How can I help you today?"))
			Expect(m.AwaitingResponse()).To(BeFalse())
		})

		It("renders a placeholder before the first resize", func() {
			fresh, err := New(context.Background(), svc, personas, "", nil)
			Expect(err).NotTo(HaveOccurred())
			defer fresh.Close()

			Expect(fresh.View()).To(Equal("Loading..."))
		})
	})

	Describe("submitting with Enter", func() {
		It("clears the input and appends the user message then the reply", func() {
			m.input.SetValue("Hello there")
			m.Update(tea.KeyMsg{Type: tea.KeyEnter})

			Expect(m.input.Value()).To(BeEmpty())
			Expect(m.AwaitingResponse()).To(BeTrue())
			Expect(m.View()).To(ContainSubstring("typing..."))

			Expect(next(m)).To(BeAssignableToTypeOf(appendedMsg{}))
			Expect(next(m)).To(BeAssignableToTypeOf(appendedMsg{}))

			Expect(m.messages).To(HaveLen(3))
			Expect(m.messages[1].Sender).To(Equal(chat.SenderUser))
			Expect(m.messages[2].Text).To(Equal(reply.Greeting))
			Expect(m.AwaitingResponse()).To(BeFalse())
			Expect(m.View()).To(ContainSubstring(reply.Greeting))
		})

		It("ignores whitespace-only input", func() {
			m.input.SetValue("   ")
			m.Update(tea.KeyMsg{Type: tea.KeyEnter})

			Expect(m.AwaitingResponse()).To(BeFalse())
			transcript, err := svc.LoadTranscript(context.Background(), m.session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(transcript).To(HaveLen(1))
		})

		It("accepts a second submission before the first reply", func() {
			m.input.SetValue("hello")
			m.Update(tea.KeyMsg{Type: tea.KeyEnter})
			m.input.SetValue("bye")
			m.Update(tea.KeyMsg{Type: tea.KeyEnter})

			for i := 0; i < 4; i++ {
				next(m)
			}

			Expect(m.messages).To(HaveLen(5))
			for i := 1; i < len(m.messages); i++ {
				Expect(m.messages[i].ID).To(BeNumerically(">", m.messages[i-1].ID))
			}
			Expect(m.AwaitingResponse()).To(BeFalse())
		})
	})

	Describe("typing", func() {
		BeforeEach(func() {
			for i := 0; i < 30; i++ {
				m.appendMessage(chat.Message{ID: int64(i + 2), Text: "line", Sender: chat.SenderBot})
			}
			m.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
		})

		It("keeps the message list at the newest message", func() {
			Expect(m.viewport.AtBottom()).To(BeTrue())

			for _, r := range "ok bob" {
				key := tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
				if r == ' ' {
					key = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{r}}
				}
				m.Update(key)
			}

			Expect(m.input.Value()).To(Equal("ok bob"))
			Expect(m.viewport.AtBottom()).To(BeTrue())
		})

		It("still scrolls with PgUp", func() {
			m.Update(tea.KeyMsg{Type: tea.KeyPgUp})

			Expect(m.viewport.AtBottom()).To(BeFalse())
			Expect(m.input.Value()).To(BeEmpty())
		})
	})

	Describe("submitting with the send control", func() {
		sendRow := func() int {
			// header, message list, status line
			return 1 + m.viewport.Height + 1
		}

		It("renders the control next to the input", func() {
			lines := strings.Split(m.View(), "\n")

			Expect(lines).To(HaveLen(sendRow() + 1))
			Expect(lines[sendRow()]).To(ContainSubstring(sendLabel))
		})

		It("submits on click", func() {
			m.input.SetValue("hello")
			m.Update(tea.MouseMsg{X: 78, Y: sendRow(), Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
			Expect(m.AwaitingResponse()).To(BeFalse())

			m.Update(tea.MouseMsg{X: 78, Y: sendRow(), Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})

			Expect(m.input.Value()).To(BeEmpty())
			Expect(m.AwaitingResponse()).To(BeTrue())

			next(m)
			Expect(m.messages).To(HaveLen(2))
			Expect(m.messages[1].Sender).To(Equal(chat.SenderUser))
			Expect(m.messages[1].Text).To(Equal("hello"))

			next(m)
			Expect(m.messages[2].Text).To(Equal(reply.Greeting))
		})

		It("ignores clicks outside the control", func() {
			m.input.SetValue("hello")
			m.Update(tea.MouseMsg{X: 5, Y: sendRow(), Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})
			m.Update(tea.MouseMsg{X: 78, Y: sendRow() - 1, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})

			Expect(m.input.Value()).To(Equal("hello"))
			Expect(m.AwaitingResponse()).To(BeFalse())
		})
	})

	Describe("quitting", func() {
		It("quits on Esc", func() {
			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})

			Expect(cmd).NotTo(BeNil())
			Expect(cmd()).To(Equal(tea.Quit()))
		})
	})
})

var _ = Describe("renderMessages", func() {
	It("wraps long messages within two thirds of the width", func() {
		long := "xyz123 "
		for i := 0; i < 6; i++ {
			long += long
		}
		out := renderMessages([]chat.Message{{ID: 1, Text: long, Sender: chat.SenderBot}}, 60)

		Expect(out).To(ContainSubstring("xyz123"))
	})
})
