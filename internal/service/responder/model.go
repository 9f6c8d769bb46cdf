// Package responder exposes the keyword reply table as an eino chat model,
// so callers depend on the chat-model abstraction rather than on the table.
package responder

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/chatbot/internal/analysis/reply"
)

// ErrNoUserMessage is returned when the input carries no user turn to answer.
var ErrNoUserMessage = errors.New("no user message to respond to")

// Model answers the latest user message with a canned reply. It never
// performs network I/O.
type Model struct{}

var _ model.BaseChatModel = (*Model)(nil)

// New returns a keyword responder.
func New() *Model {
	return &Model{}
}

// Generate implements model.BaseChatModel.
func (m *Model) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, ok := lastUserContent(input)
	if !ok {
		return nil, ErrNoUserMessage
	}

	return schema.AssistantMessage(reply.Select(query), nil), nil
}

// Stream implements model.BaseChatModel. The reply is delivered as a single chunk.
func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func lastUserContent(input []*schema.Message) (string, bool) {
	for i := len(input) - 1; i >= 0; i-- {
		if msg := input[i]; msg != nil && msg.Role == schema.User {
			return msg.Content, true
		}
	}
	return "", false
}
