// Package httptransport runs HTTP servers with graceful shutdown.
package httptransport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Name            string
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the timeouts used by the API listener.
func DefaultServerConfig(name, address string) ServerConfig {
	return ServerConfig{
		Name:            name,
		Address:         address,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// Serve listens until ctx is cancelled, then shuts the server down within
// cfg.ShutdownTimeout. A clean shutdown returns nil.
func Serve(ctx context.Context, cfg ServerConfig, handler http.Handler) error {
	srv := NewServer(cfg, handler)
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("server", cfg.Name).Str("address", cfg.Address).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info().Str("server", cfg.Name).Msg("stopped")
	return nil
}
