package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/mockreceiver/internal/config"
	"github.com/akave-ai/mockreceiver/internal/handler"
	"github.com/akave-ai/mockreceiver/internal/infrastructure/sink"
	"github.com/akave-ai/mockreceiver/internal/observability"
)

// Server holds the Echo app and dependencies.
type Server struct {
	Echo     *echo.Echo
	Config   *config.Config
	logger   zerolog.Logger
	newRelic *newrelic.Application // optional; flushed on Shutdown
}

// New builds the Echo server and registers the /log-failure route.
// nrApp may be nil.
func New(cfg *config.Config, logger zerolog.Logger, out sink.Sink, nrApp *newrelic.Application) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.Server.IdleTimeout) * time.Second

	e.Use(
		middleware.Recover(),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}),
		requestLogger(logger),
		observability.Middleware(nrApp),
	)

	failures := &handler.FailureHandler{Sink: out, Logger: logger}
	failures.Register(e, cfg.Server.BodyLimit)

	return &Server{Echo: e, Config: cfg, logger: logger, newRelic: nrApp}
}

// Addr is the address Start listens on.
func (s *Server) Addr() string {
	return s.Config.Server.Addr()
}

// Start listens and blocks until the server fails or ctx is cancelled.
// A shutdown caused by ctx returns nil.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Msg("mock receiver listening")
		errCh <- s.Echo.Start(s.Addr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownGrace())
		defer cancel()
		s.logger.Info().Msg("shutting down")
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests, waits for in-flight ones and flushes New Relic.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	observability.Shutdown(s.newRelic)
	return err
}
