package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/analysis/reply"
	"github.com/zhouzirui/chatbot/internal/metrics"
	"github.com/zhouzirui/chatbot/internal/model/chat"
	"github.com/zhouzirui/chatbot/internal/model/persona"
	"github.com/zhouzirui/chatbot/internal/service/responder"
	"github.com/zhouzirui/chatbot/pkg/logger"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message is empty")
)

const (
	// DefaultReplyDelay is the simulated latency before the bot answers.
	DefaultReplyDelay       = 500 * time.Millisecond
	defaultSubscriberBuffer = 16
)

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	ReplyDelay       time.Duration
	DefaultPersona   string
	SubscriberBuffer int
	Responder        model.BaseChatModel
	Logger           *zap.Logger
	Metrics          *metrics.Metrics
}

type sessionState struct {
	session      chat.Session
	conversation *chat.Conversation
	pending      int

	// appendMu keeps publication order equal to id order.
	appendMu sync.Mutex
}

// Service owns the sessions of the widget and runs the submission flow:
// append the user message, then append the bot reply after a fixed delay.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	personas       persona.Store
	defaultPersona string
	delay          time.Duration
	responder      model.BaseChatModel
	broker         *broker
	log            *zap.Logger
	metrics        *metrics.Metrics

	inflight sync.WaitGroup
}

// NewService builds an in-memory chat service.
func NewService(personas persona.Store, opts Options) *Service {
	if opts.ReplyDelay <= 0 {
		opts.ReplyDelay = DefaultReplyDelay
	}
	if opts.DefaultPersona == "" {
		opts.DefaultPersona = persona.DefaultID
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = defaultSubscriberBuffer
	}
	if opts.Responder == nil {
		opts.Responder = responder.New()
	}

	log := logger.OrNop(opts.Logger).Named("chat")
	return &Service{
		sessions:       make(map[string]*sessionState),
		personas:       personas,
		defaultPersona: opts.DefaultPersona,
		delay:          opts.ReplyDelay,
		responder:      opts.Responder,
		broker:         newBroker(opts.SubscriberBuffer, log, opts.Metrics),
		log:            log,
		metrics:        opts.Metrics,
	}
}

// ReplyDelay reports the configured deferred reply delay.
func (s *Service) ReplyDelay() time.Duration {
	return s.delay
}

// CreateSession provisions a session bound to a persona and seeds its
// conversation with the persona's opening line. An empty personaID selects
// the default persona.
func (s *Service) CreateSession(_ context.Context, personaID string) (chat.Session, error) {
	p, ok := s.personas.Resolve(personaID, s.defaultPersona)
	if !ok {
		if personaID == "" {
			personaID = s.defaultPersona
		}
		return chat.Session{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		PersonaID: p.ID,
		CreatedAt: time.Now().UTC(),
	}
	state := &sessionState{
		session:      session,
		conversation: chat.NewConversation(session.ID, p.OpeningLine),
	}

	s.mu.Lock()
	s.sessions[session.ID] = state
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		s.metrics.MessagesAppended.WithLabelValues(string(chat.SenderBot)).Inc()
	}
	s.log.Debug("session created", zap.String("session", session.ID), zap.String("persona", p.ID))
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return state.session, nil
}

// LoadTranscript returns the messages of a session in append order.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return state.conversation.Messages(), nil
}

// State reports whether the session is waiting for at least one bot reply.
func (s *Service) State(sessionID string) (chat.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	if state.pending > 0 {
		return chat.StateAwaitingResponse, nil
	}
	return chat.StateIdle, nil
}

// Submit appends a user message and schedules the bot reply. Blank text is
// rejected with ErrEmptyMessage and leaves the session untouched. Submitting
// while earlier replies are pending is allowed; each reply is appended on
// its own when its timer fires.
func (s *Service) Submit(_ context.Context, sessionID, text string) (chat.Submission, error) {
	state, err := s.lookup(sessionID)
	if err != nil {
		return chat.Submission{}, err
	}

	if strings.TrimSpace(text) == "" {
		if s.metrics != nil {
			s.metrics.EmptySubmissions.Inc()
		}
		return chat.Submission{}, ErrEmptyMessage
	}

	taskID := uuid.NewString()
	s.inflight.Add(1)
	if s.metrics != nil {
		s.metrics.RepliesPending.Inc()
	}
	msg := s.append(state, chat.SenderUser, text, taskID, 1)

	submittedAt := time.Now()
	time.AfterFunc(s.delay, func() {
		s.deliverReply(state, taskID, text, submittedAt)
	})

	s.log.Debug("message submitted",
		zap.String("session", sessionID),
		zap.String("task", taskID),
		zap.Int64("id", msg.ID),
	)
	return chat.Submission{TaskID: taskID, Message: msg}, nil
}

// deliverReply runs on the timer goroutine. It always appends a reply.
func (s *Service) deliverReply(state *sessionState, taskID, text string, submittedAt time.Time) {
	defer s.inflight.Done()

	content := s.generate(text)
	msg := s.append(state, chat.SenderBot, content, taskID, -1)

	if s.metrics != nil {
		s.metrics.RepliesPending.Dec()
		s.metrics.ReplyLatency.Observe(time.Since(submittedAt).Seconds())
	}

	s.log.Debug("reply appended",
		zap.String("session", msg.SessionID),
		zap.String("task", taskID),
		zap.Int64("id", msg.ID),
	)
}

func (s *Service) generate(text string) string {
	out, err := s.responder.Generate(context.Background(), []*schema.Message{schema.UserMessage(text)})
	if err != nil || out == nil {
		s.log.Warn("responder failed, using keyword reply", zap.Error(err))
		return reply.Select(text)
	}
	return out.Content
}

// Subscribe streams every message appended to the session from now on. The
// returned cancel func releases the subscription; it is safe to call twice.
//
// The lookup and the registration happen under the session lock, so a
// concurrent CloseSession either rejects the call or closes the channel.
func (s *Service) Subscribe(sessionID string) (<-chan chat.Message, func(), error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, nil, ErrSessionNotFound
	}
	ch, cancel := s.broker.subscribe(sessionID)
	return ch, cancel, nil
}

// CloseSession forgets a session and closes its subscriptions. Replies that
// are already scheduled still fire against the detached conversation.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.broker.closeSession(sessionID)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	s.log.Debug("session closed", zap.String("session", sessionID))
	return nil
}

// Wait blocks until every scheduled reply has been appended.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) lookup(sessionID string) (*sessionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

// append stores a message, adjusts the pending reply count by delta and
// publishes the message, so subscribers observe State consistent with it.
func (s *Service) append(state *sessionState, sender chat.Sender, text, taskID string, delta int) chat.Message {
	state.appendMu.Lock()
	defer state.appendMu.Unlock()

	msg := state.conversation.Append(sender, text, taskID)

	s.mu.Lock()
	state.pending += delta
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.MessagesAppended.WithLabelValues(string(sender)).Inc()
	}
	s.broker.publish(msg)
	return msg
}
