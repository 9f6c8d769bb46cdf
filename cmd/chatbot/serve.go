package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/config"
	"github.com/zhouzirui/chatbot/internal/handler"
	"github.com/zhouzirui/chatbot/internal/metrics"
	"github.com/zhouzirui/chatbot/internal/model/persona"
	"github.com/zhouzirui/chatbot/internal/service/chat"
	"github.com/zhouzirui/chatbot/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat widget API over HTTP, SSE and WebSocket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Log.Debug = true
			}

			log := logger.NewLogger(cfg.Log.Debug, nil)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	m := metrics.New()
	personas := persona.NewMemoryStore(persona.Seed())
	chatSvc := chat.NewService(personas, chat.Options{
		ReplyDelay:       cfg.Chat.ReplyDelay,
		DefaultPersona:   cfg.Chat.DefaultPersona,
		SubscriberBuffer: cfg.Chat.SubscriberBuffer,
		Logger:           log,
		Metrics:          m,
	})

	router := handler.NewRouter(handler.Dependencies{
		Personas: personas,
		Chat:     chatSvc,
		Metrics:  m,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info("chat bot listening",
		zap.String("addr", cfg.Server.Addr),
		zap.Duration("reply_delay", cfg.Chat.ReplyDelay),
	)
	err := runServer(ctx, srv)

	// Let scheduled replies land before exiting.
	chatSvc.Wait()
	return err
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
