// Package worker provides the HTTP service for newslabels.
package worker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger"

	// Registers the OpenAPI document served under /swagger/.
	_ "github.com/thebtf/newslabels/docs"
	"github.com/thebtf/newslabels/internal/cache"
	"github.com/thebtf/newslabels/internal/config"
	"github.com/thebtf/newslabels/pkg/models"
)

// CredentialHeader carries the caller's OpenAI API key.
const CredentialHeader = "X-Open-Ai-Api-Key"

// Processor labels a batch of articles.
type Processor interface {
	Process(ctx context.Context, credential string, articles []*models.Article) ([]*models.Article, error)
}

// Service is the newslabels HTTP worker.
type Service struct {
	startTime time.Time
	processor Processor
	ctx       context.Context
	config    *config.Config
	cache     *cache.Cache
	router    *chi.Mux
	server    *http.Server
	cancel    context.CancelFunc
	version   string
	ready     atomic.Bool
}

// NewService creates a Service. c may be nil when caching is disabled.
func NewService(version string, cfg *config.Config, processor Processor, c *cache.Cache) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &Service{
		version:   version,
		config:    cfg,
		processor: processor,
		cache:     c,
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	svc.setupRoutes()
	svc.server = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           svc.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(requestID)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/swagger/*", httpSwagger.WrapHandler)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Post("/v1/create_labels", s.handleCreateLabels)
		r.Post("/v1/create_labels/", s.handleCreateLabels)
	})
}

// Start listens on the configured address and serves until Shutdown.
func (s *Service) Start() error {
	s.ready.Store(true)
	log.Info().Str("addr", s.server.Addr).Str("version", s.version).Msg("Worker listening")

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight batches.
func (s *Service) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	defer s.cancel()
	return s.server.Shutdown(ctx)
}
