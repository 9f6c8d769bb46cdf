package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/chatbot/internal/config"
	"github.com/zhouzirui/chatbot/internal/model/persona"
	"github.com/zhouzirui/chatbot/internal/service/chat"
	"github.com/zhouzirui/chatbot/internal/tui"
	"github.com/zhouzirui/chatbot/pkg/logger"
)

func newChatCmd() *cobra.Command {
	var (
		personaID string
		logFile   string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat widget in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Log.Debug = true
			}

			// The terminal belongs to the widget; logs only go to a file.
			log := zap.NewNop()
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				log = logger.NewLogger(cfg.Log.Debug, f)
			}
			defer func() { _ = log.Sync() }()

			if personaID == "" {
				personaID = cfg.Chat.DefaultPersona
			}

			personas := persona.NewMemoryStore(persona.Seed())
			chatSvc := chat.NewService(personas, chat.Options{
				ReplyDelay:       cfg.Chat.ReplyDelay,
				DefaultPersona:   cfg.Chat.DefaultPersona,
				SubscriberBuffer: cfg.Chat.SubscriberBuffer,
				Logger:           log,
			})

			model, err := tui.New(cmd.Context(), chatSvc, personas, personaID, log)
			if err != nil {
				return err
			}
			defer model.Close()

			if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(cmd.Context())).Run(); err != nil {
				return fmt.Errorf("run chat widget: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&personaID, "persona", "", "Persona answering in the session (overrides CHAT_DEFAULT_PERSONA)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file")
	return cmd
}
