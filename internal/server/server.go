package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"curator/internal/config"
	"curator/internal/core"
	"curator/internal/logger"
	"curator/internal/services"
	"curator/internal/store"
)

// RequestTimeout bounds one request, including a full pipeline run.
const RequestTimeout = 120 * time.Second

// ArticleSource produces the ranked feed
type ArticleSource interface {
	FetchAllArticles(ctx context.Context) ([]core.Article, error)
}

// ActionDispatcher applies user actions
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req services.Request) (services.Response, error)
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	articles   ArticleSource
	dispatcher ActionDispatcher
	store      store.PreferenceStore
	config     config.Server
	log        *slog.Logger
}

// New creates a new HTTP server instance
func New(articles ArticleSource, dispatcher ActionDispatcher, st store.PreferenceStore, cfg config.Server) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		articles:   articles,
		dispatcher: dispatcher,
		store:      st,
		config:     cfg,
		log:        logger.Get(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.Duration(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: config.Duration(cfg.WriteTimeout, RequestTimeout+10*time.Second),
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(RequestTimeout))

	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300, // Maximum value not ignored by any major browsers
		}))
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", s.handleGetFeeds)
			r.Post("/", s.handleAction)
		})
		r.Get("/questions", s.handleListQuestions)
		r.Get("/sites", s.handleListSites)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
