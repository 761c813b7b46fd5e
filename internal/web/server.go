// Package web exposes the search engine over a JSON HTTP API.
package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/semvault/semvault/internal/embed"
	"github.com/semvault/semvault/internal/index"
	"github.com/semvault/semvault/internal/search"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host       string
	Port       int
	Store      *index.Store
	Builder    *index.Builder
	SearchOpts search.Options

	// TableProvider resolves the active vector table. Backed by the
	// table cache, so an invalidation (embedding file rewritten on disk)
	// is picked up on the next request.
	TableProvider func() (*embed.Table, error)

	// LoadDocuments supplies the corpus for rebuild requests.
	LoadDocuments func(ctx context.Context) ([]index.Document, error)

	Logger *zap.Logger
}

// Server is the JSON API server.
type Server struct {
	config  ServerConfig
	router  *chi.Mux
	logger  *zap.Logger
	handler *Handler

	mu  sync.RWMutex
	idx *index.Index
}

// NewServer creates an API server over the given (possibly nil) index.
func NewServer(cfg ServerConfig, idx *index.Index) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		idx:    idx,
	}
	s.handler = NewHandler(s)
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handler.Search)
		r.Get("/status", s.handler.Status)
		r.Post("/rebuild", s.handler.Rebuild)
	})
}

// Index returns the current index snapshot.
func (s *Server) Index() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// Rebuild runs a full index build and swaps in the result. Concurrent
// rebuild requests are rejected by the builder's latch.
func (s *Server) Rebuild(ctx context.Context) (*index.Index, error) {
	table, err := s.config.TableProvider()
	if err != nil {
		return nil, fmt.Errorf("load table: %w", err)
	}
	docs, err := s.config.LoadDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	idx, err := s.config.Builder.Build(ctx, docs, table)
	if err != nil {
		return nil, err
	}
	if err := s.config.Store.Save(idx); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}
	s.mu.Lock()
	s.idx = idx
	s.mu.Unlock()
	return idx, nil
}

// ListenAndServe runs the server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
