// Package api exposes quotes, the token catalog and explorer sessions over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"swapScope/internal/catalog"
	"swapScope/internal/config"
	"swapScope/internal/metacache"
	"swapScope/internal/model"
	"swapScope/internal/refresh"
	"swapScope/internal/storage"
	"swapScope/internal/swap"
)

// Metadata is what the API needs from the metadata cache.
type Metadata interface {
	catalog.MetadataGetter
	catalog.MetadataLookup
	FetchOne(ctx context.Context, basic model.Token) model.Token
}

var _ Metadata = (*metacache.Cache)(nil)

// History reads previously journaled quotes.
type History interface {
	RecentQuotes(ctx context.Context, sourceChain, sourceSymbol, targetChain, targetSymbol string, limit int) ([]model.QuoteRecord, error)
}

// Deps are the shared components behind every request.
type Deps struct {
	Quoter            *swap.Quoter
	Metadata          Metadata
	Catalog           config.Catalog
	PageSize          int
	InitialTokenCount int
	Refresh           refresh.Config
	Journal           *storage.Journal
	History           History
	Logger            *zap.Logger
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Address        string
	AllowedOrigins []string
	RatePerMinute  int
}

// Server wraps the HTTP server and its session registry.
type Server struct {
	cfg        ServerConfig
	deps       Deps
	pager      *catalog.Pager
	sessions   *Registry
	logger     *zap.Logger
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(cfg ServerConfig, deps Deps) (*Server, error) {
	if deps.Quoter == nil || deps.Metadata == nil {
		return nil, fmt.Errorf("quoter and metadata are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 3
	}
	pager, err := catalog.NewPager(deps.Catalog, deps.Metadata, deps.PageSize, deps.Logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		pager:    pager,
		sessions: NewRegistry(),
		logger:   deps.Logger,
	}

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger(s.logger))
	mux.Use(recoverer(s.logger))
	if cfg.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(cfg.RatePerMinute, time.Minute))
	}

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "healthy",
			"service":  "swapscope",
			"sessions": s.sessions.Len(),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/v1", func(r chi.Router) {
		r.Use(noStore)
		r.Get("/quote", s.handleQuote)
		r.Get("/history", s.handleHistory)
		r.Get("/tokens", s.handleTokens)
		r.Get("/tokens/lazy", s.handleLazyTokens)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Put("/", s.handleUpdateSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/refresh", s.handleRefreshSession)
			r.Post("/swap", s.handleSwapSession)
			r.Get("/stream", s.handleStreamSession)
		})
	})

	s.handler = newCORSHandler(cfg.AllowedOrigins, mux)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions exposes the registry.
func (s *Server) Sessions() *Registry {
	return s.sessions
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("address", s.cfg.Address))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.sessions.CloseAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	if err != nil {
		return fmt.Errorf("shutdown api: %w", err)
	}
	return nil
}
