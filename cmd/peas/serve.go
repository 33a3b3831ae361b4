package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/awehrman/peas/internal/app"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var configFiles configPaths
	fs.Var(&configFiles, "config", "Configuration file path (repeatable, later files override earlier ones)")
	fs.Var(&configFiles, "c", "Configuration file path (shorthand)")
	port := fs.Int("port", 0, "Server port (overrides config)")
	host := fs.String("host", "", "Server host (overrides config)")
	fs.Parse(args)

	cfg, logger := bootstrap(configFiles, *port, *host)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}

	logger.Info().Msg("Worker fleet ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")

	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}
