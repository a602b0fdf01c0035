package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/vpnboard/internal/config"
	"github.com/shohag/vpnboard/internal/outline"
	"github.com/shohag/vpnboard/internal/registry"
	"github.com/shohag/vpnboard/internal/status"
)

type Server struct {
	cfg     config.ServerConfig
	auth    config.AuthConfig
	reg     *registry.Registry
	agg     *status.Aggregator
	clients outline.Factory
	router  *chi.Mux
	log     zerolog.Logger
	http    *http.Server
}

func NewServer(cfg *config.Config, reg *registry.Registry, agg *status.Aggregator, clients outline.Factory, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg.Server,
		auth:    cfg.Auth,
		reg:     reg,
		agg:     agg,
		clients: clients,
		log:     log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	serverHandler := NewServerHandler(s.reg, s.clients, s.log)
	statsHandler := NewStatsHandler(s.reg, s.agg, s.log)
	keyHandler := NewKeyHandler(s.reg, s.clients, s.log)

	// Health check, no auth
	r.Get("/health", statsHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(s.auth))

		r.Get("/status", statsHandler.StreamStatus)

		r.Get("/servers", serverHandler.List)
		r.Post("/servers", serverHandler.Create)

		r.Route("/servers/{id}", func(r chi.Router) {
			r.Delete("/", serverHandler.Delete)
			r.Put("/name", serverHandler.Rename)
			r.Get("/status", statsHandler.Status)
			r.Get("/usage", statsHandler.Usage)

			r.Post("/keys", keyHandler.Create)
			r.Delete("/keys/{keyId}", keyHandler.Delete)
			r.Put("/keys/{keyId}/name", keyHandler.Rename)
			r.Put("/keys/{keyId}/data-limit", keyHandler.SetLimit)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
