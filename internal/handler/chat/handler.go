package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/model/chat"
	chatService "github.com/zhouzirui/chatbot/internal/service/chat"
	"github.com/zhouzirui/chatbot/pkg/logger"
	"github.com/zhouzirui/chatbot/pkg/utils"
)

// Handler serves the REST side of the chat widget.
type Handler struct {
	chatSvc *chatService.Service
	log     *zap.Logger
}

// New creates a chat handler.
func New(chatSvc *chatService.Service, log *zap.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		log:     logger.OrNop(log).Named("http.chat"),
	}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleCloseSession)
	r.Post("/messages", h.handleSubmit)
}

type sessionView struct {
	Session  chat.Session   `json:"session"`
	State    chat.State     `json:"state"`
	Messages []chat.Message `json:"messages"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}

	// An empty body selects the default persona.
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.PersonaID)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	h.respondSession(r.Context(), w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	h.respondSession(r.Context(), w, http.StatusOK, session)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID string `json:"sessionId"`
		Text      string `json:"text"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	submission, err := h.chatSvc.Submit(r.Context(), payload.SessionID, payload.Text)
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		// Blank input is ignored without feedback.
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	h.respond(w, http.StatusAccepted, submission)
}

func (h *Handler) respondSession(ctx context.Context, w http.ResponseWriter, status int, session chat.Session) {
	messages, err := h.chatSvc.LoadTranscript(ctx, session.ID)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}
	state, err := h.chatSvc.State(session.ID)
	if err != nil {
		h.respondError(w, statusFor(err), err.Error())
		return
	}

	h.respond(w, status, sessionView{Session: session, State: state, Messages: messages})
}

func (h *Handler) respond(w http.ResponseWriter, status int, payload any) {
	if err := utils.RespondJSON(w, status, payload); err != nil {
		h.log.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	if err := utils.RespondError(w, status, message); err != nil {
		h.log.Warn("failed to encode error response", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrPersonaNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
