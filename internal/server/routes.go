package server

import (
	"context"
	"net/http"

	"github.com/cortexai/coursebot/internal/config"
	"github.com/cortexai/coursebot/internal/handler"
	"github.com/cortexai/coursebot/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func (s *Server) setupRoutes(ctx context.Context) http.Handler {
	cfg := s.app.Config

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no API keys configured - all API requests will be rejected")
	}

	// ─── Handlers ────────────────────────────────────────────────────────────────
	deps := map[string]handler.Pinger{
		"index":    s.app.Index,
		"sessions": s.app.Sessions,
		"audit":    nil,
	}
	if s.app.Audit != nil {
		deps["audit"] = s.app.Audit
	}
	healthH := handler.NewHealthHandler(deps)
	queryH := handler.NewQueryHandler(s.app.RAG, s.app.Sessions)
	coursesH := handler.NewCoursesHandler(s.app.RAG)

	// ─── Router ──────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins, config.DefaultCORSMaxAge)))
	r.Use(chiMiddleware.RealIP)

	r.Get("/health", healthH.Health)

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute)
	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Use(limiter.Handler(cfg.APIKeyHeader))
		if cfg.EnableAuth {
			r.Use(middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
		}
		r.Post("/query", queryH.Query)
		r.Get("/courses", coursesH.Stats)
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", noCache(http.FileServer(http.Dir(cfg.StaticDir))))
	} else {
		r.Get("/", healthH.Health)
	}
	return r
}

// noCache disables browser caching of the frontend during development.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}
