// Package gateway provides a reusable code review gateway that can be
// embedded into other Go applications.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reviewd/reviewd/internal/api"
	"github.com/reviewd/reviewd/internal/config"
	"github.com/reviewd/reviewd/internal/fetcher"
	"github.com/reviewd/reviewd/internal/llm"
	"github.com/reviewd/reviewd/internal/pipeline"
	"github.com/reviewd/reviewd/internal/queue"
	"github.com/reviewd/reviewd/internal/scheduler"
	"github.com/reviewd/reviewd/internal/service"
	"github.com/reviewd/reviewd/internal/stage"
	"github.com/reviewd/reviewd/internal/store"
	"github.com/reviewd/reviewd/pkg/logger"
)

// Gateway wires the job store, queue, worker pool, and HTTP surface
// into one runnable instance
type Gateway struct {
	cfg       *config.Config
	service   *service.Service
	scheduler *scheduler.Scheduler
	store     store.Store
	queue     queue.Queue
	router    http.Handler
	server    *http.Server
	logger    *logger.Logger
}

// New creates a new Gateway instance with the provided configuration
func New(cfg *Config) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return newGateway(cfg.toInternal())
}

func newGateway(cfg *config.Config) (*Gateway, error) {
	appLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// Job store
	var st store.Store
	switch cfg.Store.Driver {
	case "", "memory":
		st = store.NewMemory()
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite store: %w", err)
		}
		st = s
		appLogger.Info("initialized sqlite job store", "path", cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	// Queue
	q := queue.NewMemory(cfg.Queue.Size)

	// Reasoning backend + stages
	client, err := llm.New(llm.Config{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize llm client: %w", err)
	}
	stages := stage.Default(client, stage.Options{
		Timeout:   cfg.LLM.Timeout,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	appLogger.Info("initialized reasoning backend",
		"provider", client.Name(),
		"model", cfg.LLM.Model,
		"stages", len(stages))

	// Pipeline + fetcher + worker pool
	coordinator := pipeline.New(stages, cfg.Workers.FileConcurrency, appLogger)
	gh := fetcher.NewGitHub(fetcher.GitHubConfig{
		APIURL:     cfg.GitHub.APIURL,
		Token:      cfg.GitHub.Token,
		Timeout:    cfg.GitHub.Timeout,
		MaxRetries: cfg.GitHub.MaxRetries,
	}, appLogger)
	sched := scheduler.New(st, q, gh, coordinator, scheduler.Config{
		Workers:          cfg.Workers.Count,
		JobTimeout:       cfg.Workers.JobTimeout,
		WatchdogInterval: cfg.Workers.WatchdogInterval,
	}, appLogger)

	// Service + API layers
	svc := service.NewService(st, q, appLogger)
	handlers := api.NewHandlers(svc)
	authMiddleware := api.NewAuthMiddleware(cfg.Auth.APIKeys)
	loggingMiddleware := api.NewLoggingMiddleware(appLogger)
	router := api.NewRouter(handlers, authMiddleware, loggingMiddleware)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Gateway{
		cfg:       cfg,
		service:   svc,
		scheduler: sched,
		store:     st,
		queue:     q,
		router:    router,
		server:    srv,
		logger:    appLogger,
	}, nil
}

// Start runs the HTTP server and the worker pool. Blocks until the
// context is canceled or the server fails.
func (g *Gateway) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.scheduler.Start(ctx)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		g.logger.Info("starting http server", "port", g.cfg.Server.Port)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		g.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := g.server.Shutdown(shutdownCtx); err != nil {
			g.server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	err := eg.Wait()

	// Drain workers before releasing backing resources
	g.scheduler.Wait()
	g.queue.Close()
	if cerr := g.store.Close(); cerr != nil {
		g.logger.Error("closing job store", "error", cerr)
	}

	if err != nil {
		return err
	}
	g.logger.Info("server stopped gracefully")
	return nil
}

// StartWorkers runs only the worker pool and watchdog, for embedders
// that mount Handler on their own HTTP server. Blocks until ctx is
// canceled.
func (g *Gateway) StartWorkers(ctx context.Context) error {
	g.scheduler.Start(ctx)
	<-ctx.Done()

	g.scheduler.Wait()
	g.queue.Close()
	return g.store.Close()
}

// Handler returns the http.Handler for the gateway.
// Use this to integrate the gateway into an existing HTTP server.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Service returns the underlying service layer for direct programmatic
// access
func (g *Gateway) Service() *service.Service {
	return g.service
}

// NewFromEnv creates a Gateway from the config file named by
// REVIEWD_CONFIG (default configs/gateway.yaml) plus environment
// variables
func NewFromEnv(configFile string) (*Gateway, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newGateway(cfg)
}
