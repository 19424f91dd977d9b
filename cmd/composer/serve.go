package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/datakettle/dp-composer/pkg/composer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket front-end",
	Long: `serve exposes the composer over HTTP: a JSON API under /v1, a
websocket chat endpoint, Prometheus metrics, and an embedded chat page.
Runs until SIGINT or SIGTERM, then drains in-flight requests.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.Logging, os.Stdout)

	comp, err := composer.New(
		composer.WithConfig(cfg),
		composer.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	serveErr := comp.Serve(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := comp.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	return serveErr
}
