package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Run starts the server and blocks until SIGINT/SIGTERM or ctx is done,
// then shuts down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Start(ctx)
}

// Start boots background work, serves HTTP and shuts down when ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Boot(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Relay listening", "addr", s.Cfg.Addr())
		if err := s.E.Start(s.Cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down relay")
	case serveErr = <-errCh:
		s.logger.Error("HTTP server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, s.Shutdown(shutdownCtx))
}
