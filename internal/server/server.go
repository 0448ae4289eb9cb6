package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Server struct {
	app  *App
	http *http.Server
}

// New builds the HTTP server around app. ctx bounds background work such as
// the rate limiter janitor.
func New(ctx context.Context, app *App) *Server {
	cfg := app.Config
	s := &Server{app: app}
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.setupRoutes(ctx),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AgentDeadline() + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully and closes
// the app's backends.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		s.app.Close()
		log.Info().Msg("backends closed")
		return err
	case err := <-errCh:
		s.app.Close()
		return err
	}
}
