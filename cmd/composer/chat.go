package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/datakettle/dp-composer/internal/cli"
	"github.com/datakettle/dp-composer/pkg/composer"
)

var (
	chatSession string
	chatMessage string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interview interactively in the terminal",
	Long: `chat starts the interactive interview. Free text is sent to the
composer; reserved words (help, history, clear, reset, session, sessions,
switch <id>, state, progress, quit, exit, bye) manage the session.

With --message, sends a single message and prints the turn result as JSON
instead of starting the loop.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "resume an existing session id")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "send one message and exit")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// The terminal is the conversation surface; logs go to stderr as text
	// unless explicitly configured otherwise.
	if logFormat == "" {
		cfg.Logging.Format = "text"
	}
	logger := newLogger(cfg.Logging, os.Stderr)

	comp, err := composer.New(
		composer.WithConfig(cfg),
		composer.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := comp.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if chatMessage != "" {
		return cli.RunOnce(ctx, comp, chatSession, chatMessage, os.Stdout)
	}

	return cli.New(comp, chatSession).Run(ctx)
}
