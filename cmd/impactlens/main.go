package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/impactlens/internal/app"
	"github.com/p-blackswan/impactlens/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal := zerolog.New(os.Stderr)
		fatal.Fatal().Err(err).Msg("failed to load config")
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel, os.Stdout)
	log.Logger = logger

	logger.Info().
		Str("environment", cfg.Environment).
		Str("http_addr", cfg.HTTPAddr).
		Str("db_path", cfg.DBPath).
		Bool("jira_configured", cfg.JiraEnabled()).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting impactlens")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	server := a.NewServer()
	var wg sync.WaitGroup

	// The probe only logs; the service starts either way.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.ProbeJira(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.RunRetention(ctx, cfg.RetentionInterval)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("API server error")
		}
	}

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	if err := a.Close(); err != nil {
		logger.Error().Err(err).Msg("store close error")
	}
	logger.Info().Msg("impactlens stopped")
}
