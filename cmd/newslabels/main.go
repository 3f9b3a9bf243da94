// Package main provides the HTTP server entry point for newslabels.
//
//	@title			newslabels API
//	@version		1.0
//	@description	Groups news articles by semantic similarity and labels each group.
//	@BasePath		/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/newslabels/docs"
	"github.com/thebtf/newslabels/internal/cache"
	"github.com/thebtf/newslabels/internal/config"
	"github.com/thebtf/newslabels/internal/embedding"
	"github.com/thebtf/newslabels/internal/labeling"
	"github.com/thebtf/newslabels/internal/llm"
	"github.com/thebtf/newslabels/internal/pipeline"
	"github.com/thebtf/newslabels/internal/watcher"
	"github.com/thebtf/newslabels/internal/worker"
	"github.com/thebtf/newslabels/pkg/similarity"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	// Parse flags
	debug := flag.Bool("debug", false, "Enable debug logging")
	settings := flag.String("settings", "", "Settings file (default: ~/.newslabels/settings.json)")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if *settings != "" {
		if err := os.Setenv(config.KeySettings, *settings); err != nil {
			log.Fatal().Err(err).Msg("Failed to set settings path")
		}
	}

	cfg := loadConfig()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if *debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Shutting down worker")
		cancel()
	}()

	// Initialize cache and pipeline
	c := newCache(ctx, cfg)
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close cache store")
		}
	}()

	orchestrator, err := newOrchestrator(cfg, c)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build labeling pipeline")
	}

	docs.SwaggerInfo.Version = Version
	svc := worker.NewService(Version, cfg, orchestrator, c)

	// Start config watcher
	startConfigWatcher(cancel)

	// Start server
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Start()
	}()

	// Wait for shutdown
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Worker failed")
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker shutdown did not complete cleanly")
	}
	log.Info().Msg("Worker stopped")
}

// loadConfig prepares the data directory and returns the process config.
// A read-only home only costs the default settings file.
func loadConfig() *config.Config {
	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure data directory, continuing with defaults")
	}
	return config.Get()
}

// newCache builds the result cache on the configured backend. An unreachable
// Redis is logged, not fatal: with fail-open the service keeps working
// uncached until Redis comes back.
func newCache(ctx context.Context, cfg *config.Config) *cache.Cache {
	var store cache.Store
	switch cfg.CacheBackend {
	case "memory":
		store = cache.NewMemoryStore()
		log.Info().Msg("Using in-process result cache")
	default:
		redisStore := cache.NewRedisStore(cache.NewRedisPool(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}))
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisStore.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unavailable at startup")
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		}
		pingCancel()
		store = redisStore
	}

	return cache.New(store, cache.Config{
		TTL:      cfg.CacheTTL,
		FailOpen: cfg.CacheFailOpen,
	})
}

func newOrchestrator(cfg *config.Config, c *cache.Cache) (*pipeline.Orchestrator, error) {
	client := llm.ClientConfig{BaseURL: cfg.OpenAIBaseURL}

	truncator, err := embedding.NewTruncator(cfg.EmbeddingMaxTokens)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewCached(
		embedding.NewOpenAI(client,
			embedding.WithModel(cfg.EmbeddingModel),
			embedding.WithDimension(cfg.EmbeddingDimensions),
			embedding.WithTruncator(truncator),
		),
		c,
	)

	labeler := labeling.NewCached(
		labeling.NewOpenAI(client,
			labeling.WithModel(cfg.LabelModel),
			labeling.WithMaxTokens(cfg.LabelMaxTokens),
			labeling.WithSystemPrompt(cfg.LabelSystemPrompt),
		),
		c,
	)

	clusterer := similarity.NewDBSCAN()
	if cfg.ClusterEps > 0 {
		clusterer.Eps = cfg.ClusterEps
	}
	if cfg.ClusterMinSamples > 0 {
		clusterer.MinSamples = cfg.ClusterMinSamples
	}

	log.Info().
		Str("embedding_model", embedder.Model()).
		Str("label_model", labeler.Model()).
		Float64("eps", clusterer.Eps).
		Int("min_samples", clusterer.MinSamples).
		Msg("Labeling pipeline ready")

	return pipeline.New(embedder, clusterer, labeler, cfg.EmbedConcurrency), nil
}

// startConfigWatcher stops the worker when the settings file changes so the
// supervisor restarts it with the new settings.
func startConfigWatcher(stop context.CancelFunc) {
	path := config.SettingsPath()
	w, err := watcher.New(path, func() {
		log.Warn().Str("path", path).Msg("Settings file changed, exiting for restart")
		stop()
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return
	}
	log.Info().Str("path", path).Msg("Settings file watcher started")
}
