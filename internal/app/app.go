// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/api"
	"github.com/loxal/page-finder-service/internal/clock/system"
	"github.com/loxal/page-finder-service/internal/config"
	"github.com/loxal/page-finder-service/internal/crawl"
	"github.com/loxal/page-finder-service/internal/index"
	"github.com/loxal/page-finder-service/internal/logging"
	"github.com/loxal/page-finder-service/internal/page"
	"github.com/loxal/page-finder-service/internal/site"
)

// App holds the shared, long-lived services of the application. It is
// initialized once at startup and handed to the components that need it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	client    *index.Client
	sites     *site.Store
	pages     *page.Repo
	crawler   *crawl.Service
	cleaner   *crawl.Cleaner
	scheduler *crawl.Scheduler
	server    *api.Server
}

// New builds the full service graph from configuration. It fails fast when
// any critical service cannot be initialized.
func New(_ context.Context, cfgFile string) (*App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("initializing application services")

	clk := system.New()
	client := index.NewClient(cfg.Index.URL, cfg.Index.Name, cfg.Auth.AdminSecret, cfg.Index.Timeout, logger)
	sites := site.NewStore(client, logger)
	pages := page.NewRepo(client, clk, logger)
	cleaner := crawl.NewCleaner(client, clk, logger)

	crawler := crawl.NewService(crawl.ServiceConfig{
		Throttled:      cfg.Crawler.Throttled,
		UserAgent:      cfg.Crawler.UserAgent,
		Threads:        cfg.Crawler.Threads,
		Delay:          cfg.Crawler.Delay,
		MaxPages:       cfg.Crawler.MaxPages,
		StorageRoot:    cfg.Crawler.StorageDir,
		RequestTimeout: cfg.Crawler.RequestTimeout,
	}, pages, nil, logger)

	scheduler := crawl.NewScheduler(crawl.SchedulerConfig{
		PoolCap:         int64(cfg.Scheduler.PoolCap),
		TaskTimeout:     cfg.Scheduler.TaskTimeout,
		RecrawlInterval: cfg.Scheduler.RecrawlInterval,
		Retention:       cfg.Cleanup.Retention,
	}, sites, crawler, pages, cleaner, clk, logger)

	server := api.NewServer(sites, scheduler, crawler, pages, client, cfg, logger)

	logger.Info("application services initialized",
		zap.String("index", cfg.Index.URL),
		zap.Int("port", cfg.Server.Port),
	)
	return &App{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		sites:     sites,
		pages:     pages,
		crawler:   crawler,
		cleaner:   cleaner,
		scheduler: scheduler,
		server:    server,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Sites returns the tenant store.
func (a *App) Sites() *site.Store { return a.sites }

// Pages returns the page repository.
func (a *App) Pages() *page.Repo { return a.pages }

// Scheduler returns the multi-site crawl scheduler.
func (a *App) Scheduler() *crawl.Scheduler { return a.scheduler }

// Server returns the HTTP API server.
func (a *App) Server() *api.Server { return a.server }

// Close flushes the logger. Flushing matters so that all buffered log
// entries are written before the process exits.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("error syncing logger on shutdown", zap.Error(err))
	}
}
