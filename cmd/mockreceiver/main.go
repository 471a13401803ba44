package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/akave-ai/mockreceiver/internal/config"
	"github.com/akave-ai/mockreceiver/internal/infrastructure/sink"
	"github.com/akave-ai/mockreceiver/internal/logger"
	"github.com/akave-ai/mockreceiver/internal/observability"
	"github.com/akave-ai/mockreceiver/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("could not load config")
	}

	log := logger.New(cfg.Observability)

	nrApp, err := observability.NewRelic(cfg.Observability)
	if err != nil {
		log.Warn().Err(err).Msg("new relic disabled")
		nrApp = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, log, sink.NewConsole(os.Stdout), nrApp)
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}
