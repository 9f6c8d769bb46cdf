package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/model/persona"
	"github.com/zhouzirui/chatbot/pkg/logger"
	"github.com/zhouzirui/chatbot/pkg/utils"
)

// Handler lists the bot profiles available to the widget.
type Handler struct {
	personas persona.Store
	log      *zap.Logger
}

// New creates a persona handler.
func New(personas persona.Store, log *zap.Logger) *Handler {
	return &Handler{
		personas: personas,
		log:      logger.OrNop(log).Named("http.persona"),
	}
}

// RegisterRoutes mounts the persona routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleListPersonas)
}

func (h *Handler) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	if err := utils.RespondJSON(w, http.StatusOK, h.personas.List()); err != nil {
		h.log.Warn("failed to encode personas", zap.Error(err))
	}
}
