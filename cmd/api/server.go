package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"bankledger/internal/interfaces/scheduler"
	"bankledger/internal/shared/config"
)

// NewServer creates the HTTP server from application config.
func NewServer(handler http.Handler, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer serves in the background. Listen errors are sent on the
// returned channel.
func StartServer(srv *http.Server, logger zerolog.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// GracefulShutdown stops the server and the scheduler.
func GracefulShutdown(srv *http.Server, sched *scheduler.Scheduler, timeout time.Duration, logger zerolog.Logger) {
	logger.Info().Msg("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	if sched != nil {
		sched.Stop(timeout)
	}

	logger.Info().Msg("Server stopped")
}
