package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/ideaforge/internal/server"
	"github.com/jonathan/ideaforge/internal/server/ratelimit"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts run submissions and exposes run status,
progress events and artifacts. Runs left queued or running by a previous
process are recovered on startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	recovered, err := a.dispatcher.Recover(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover runs: %w", err)
	}
	if recovered > 0 {
		logger.Info().Int("runs", recovered).Msg("recovered unfinished runs")
	}

	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       ratelimit.NewConfig(cfg.RateLimit),
		JWT:             &cfg.JWT,
	}, server.Deps{
		Dispatcher: a.dispatcher,
		Tracker:    a.tracker,
		Store:      a.store,
		Events:     a.engine.Events(),
		Health:     a.gateway.States,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if !cfg.JWT.Enabled() {
		logger.Warn().Msg("JWT secret not set; mutating routes are unauthenticated")
	}

	return srv.Start(ctx)
}
