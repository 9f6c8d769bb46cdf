package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/model/chat"
	chatService "github.com/zhouzirui/chatbot/internal/service/chat"
	"github.com/zhouzirui/chatbot/pkg/logger"
)

const (
	readWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
	maxMsgSize = 16 << 10
)

// Message types exchanged over the socket.
const (
	TypeSubmit    = "submit"
	TypeConnected = "connected"
	TypeMessage   = "message"
	TypeError     = "error"
)

// Handler lets a browser widget submit text and receive appended messages
// over one WebSocket per session.
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// New creates a WebSocket handler.
func New(chatSvc *chatService.Service, log *zap.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: logger.OrNop(log).Named("ws"),
	}
}

// RegisterRoutes mounts the WebSocket route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// InboundMessage is a frame sent by the client.
type InboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// SubmitData is the payload of a submit frame.
type SubmitData struct {
	Text string `json:"text"`
}

// OutgoingMessage is a frame sent to the client.
type OutgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// close unblocks the read loop; the handler owns the final Close.
func (c *conn) close(log *zap.Logger) {
	if err := c.ws.Close(); err != nil {
		log.Debug("close failed", zap.Error(err))
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	updates, cancelSub, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	defer cancelSub()

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	c := &conn{ws: ws}
	log := h.log.With(zap.String("session", sessionID))
	log.Debug("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws.SetReadLimit(maxMsgSize)
	if err := ws.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		log.Debug("set read deadline failed", zap.Error(err))
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	messages, err := h.chatSvc.LoadTranscript(ctx, sessionID)
	if err != nil {
		h.sendError(c, sessionID, "session not found")
		return
	}
	state, err := h.chatSvc.State(sessionID)
	if err != nil {
		h.sendError(c, sessionID, "session not found")
		return
	}
	if err := c.writeJSON(h.frame(TypeConnected, sessionID, map[string]any{
		"state":    state,
		"messages": messages,
	})); err != nil {
		log.Debug("write connected failed", zap.Error(err))
		return
	}

	lastID := int64(0)
	if n := len(messages); n > 0 {
		lastID = messages[n-1].ID
	}
	go h.forwardLoop(ctx, cancel, c, sessionID, updates, lastID, log)

	for {
		var msg InboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", zap.Error(err))
			}
			return
		}
		if err := ws.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			log.Debug("set read deadline failed", zap.Error(err))
			return
		}

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(c, sessionID, "session mismatch")
			continue
		}

		h.handleMessage(ctx, c, sessionID, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *conn, sessionID string, msg *InboundMessage) {
	switch msg.Type {
	case TypeSubmit:
		var data SubmitData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(c, sessionID, "invalid submit payload")
			return
		}

		_, err := h.chatSvc.Submit(ctx, sessionID, data.Text)
		switch {
		case err == nil, errors.Is(err, chatService.ErrEmptyMessage):
			// Appended messages reach the client through the subscription;
			// blank input is ignored silently.
		case errors.Is(err, chatService.ErrSessionNotFound):
			h.sendError(c, sessionID, "session not found")
		default:
			h.sendError(c, sessionID, "submit failed")
		}
	default:
		h.sendError(c, sessionID, "unsupported message type: "+msg.Type)
	}
}

// forwardLoop relays appended messages and keeps the connection alive.
func (h *Handler) forwardLoop(ctx context.Context, cancel context.CancelFunc, c *conn, sessionID string, updates <-chan chat.Message, lastID int64, log *zap.Logger) {
	defer cancel()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				h.sendError(c, sessionID, "session closed")
				c.close(log)
				return
			}
			if msg.ID <= lastID {
				continue
			}
			lastID = msg.ID
			if err := c.writeJSON(h.frame(TypeMessage, sessionID, msg)); err != nil {
				log.Debug("write message failed", zap.Error(err))
				c.close(log)
				return
			}
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Debug("ping failed", zap.Error(err))
				c.close(log)
				return
			}
		}
	}
}

func (h *Handler) frame(typ, sessionID string, data any) OutgoingMessage {
	return OutgoingMessage{
		Type:      typ,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

func (h *Handler) sendError(c *conn, sessionID, message string) {
	if err := c.writeJSON(h.frame(TypeError, sessionID, map[string]string{"message": message})); err != nil {
		h.log.Debug("write error failed", zap.Error(err))
	}
}
