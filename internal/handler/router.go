package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/handler/chat"
	"github.com/zhouzirui/chatbot/internal/handler/persona"
	"github.com/zhouzirui/chatbot/internal/handler/stream"
	"github.com/zhouzirui/chatbot/internal/handler/ws"
	"github.com/zhouzirui/chatbot/internal/metrics"
	middlewarePkg "github.com/zhouzirui/chatbot/internal/middleware"
	personaModel "github.com/zhouzirui/chatbot/internal/model/persona"
	chatService "github.com/zhouzirui/chatbot/internal/service/chat"
	"github.com/zhouzirui/chatbot/pkg/logger"
)

// Dependencies are the services the HTTP surface is wired to.
type Dependencies struct {
	Personas  personaModel.Store
	Chat      *chatService.Service
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Heartbeat time.Duration
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	log := logger.OrNop(deps.Logger)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas, log).RegisterRoutes(api)
		chat.New(deps.Chat, log).RegisterRoutes(api)
		stream.New(deps.Chat, deps.Heartbeat, log).RegisterRoutes(api)
		ws.New(deps.Chat, log).RegisterRoutes(api)
	})

	return r
}
