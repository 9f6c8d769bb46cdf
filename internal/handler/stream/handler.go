package stream

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/model/chat"
	chatService "github.com/zhouzirui/chatbot/internal/service/chat"
	"github.com/zhouzirui/chatbot/pkg/logger"
	"github.com/zhouzirui/chatbot/pkg/utils"
)

const defaultHeartbeat = 15 * time.Second

// Handler pushes conversation updates to a browser via Server-Sent Events.
type Handler struct {
	chatSvc   *chatService.Service
	heartbeat time.Duration
	log       *zap.Logger
}

// New creates a stream handler. A non-positive heartbeat selects 15s.
func New(chatSvc *chatService.Service, heartbeat time.Duration, log *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Handler{
		chatSvc:   chatSvc,
		heartbeat: heartbeat,
		log:       logger.OrNop(log).Named("http.stream"),
	}
}

// RegisterRoutes mounts the stream route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

type snapshot struct {
	SessionID string         `json:"sessionId"`
	State     chat.State     `json:"state"`
	Messages  []chat.Message `json:"messages"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before reading the transcript so no append is lost between the two.
	updates, cancel, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chatService.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		h.respondError(w, status, err.Error())
		return
	}
	defer cancel()

	ctx := r.Context()
	messages, err := h.chatSvc.LoadTranscript(ctx, sessionID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	state, err := h.chatSvc.State(sessionID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, err.Error())
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "snapshot", snapshot{SessionID: sessionID, State: state, Messages: messages}); err != nil {
		h.log.Debug("snapshot write failed", zap.Error(err))
		return
	}
	lastID := int64(0)
	if n := len(messages); n > 0 {
		lastID = messages[n-1].ID
	}

	h.log.Debug("stream opened", zap.String("session", sessionID))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debug("stream closed by client", zap.String("session", sessionID))
			return
		case msg, ok := <-updates:
			if !ok {
				if err := utils.SendSSEEvent(w, flusher, "closed", map[string]string{"sessionId": sessionID}); err != nil {
					h.log.Debug("closed event write failed", zap.Error(err))
				}
				return
			}
			// Already part of the snapshot.
			if msg.ID <= lastID {
				continue
			}
			lastID = msg.ID
			if err := utils.SendSSEEvent(w, flusher, "message", msg); err != nil {
				h.log.Debug("stream write failed", zap.Error(err))
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"time": t.UTC().Format(time.RFC3339),
			}); err != nil {
				h.log.Debug("heartbeat write failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	if err := utils.RespondError(w, status, message); err != nil {
		h.log.Warn("write error response failed", zap.Error(err))
	}
}
