package crawl

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/site"
)

// Crawler runs one crawl configuration for one tenant.
type Crawler interface {
	Crawl(ctx context.Context, tenantID string, cfg site.CrawlConfig) (Result, error)
}

// ServiceConfig carries the crawl knobs shared by every session.
type ServiceConfig struct {
	Throttled      bool
	UserAgent      string
	Threads        int
	Delay          time.Duration
	MaxPages       int
	StorageRoot    string
	RequestTimeout time.Duration
}

// Service builds a fresh Session per Crawl call so concurrent tenants never
// share frontier state.
type Service struct {
	cfg      ServiceConfig
	indexer  PageIndexer
	frontier FrontierFactory
	counter  *ProgressCounter
	logger   *zap.Logger
}

// NewService constructs a Service. A nil frontier factory selects the
// default engine-backed frontier.
func NewService(cfg ServiceConfig, indexer PageIndexer, frontier FrontierFactory, logger *zap.Logger) *Service {
	if frontier == nil {
		frontier = func(fc FrontierConfig) (Frontier, error) {
			return NewCollyFrontier(fc, logger)
		}
	}
	return &Service{
		cfg:      cfg,
		indexer:  indexer,
		frontier: frontier,
		counter:  NewProgressCounter(),
		logger:   logger,
	}
}

// Progress reports the number of pages indexed so far in the tenant's
// current run, or zero when no run is active.
func (s *Service) Progress(tenantID string) int64 {
	return s.counter.Get(tenantID)
}

// Crawl runs one session for the tenant's crawl configuration.
func (s *Service) Crawl(ctx context.Context, tenantID string, cfg site.CrawlConfig) (Result, error) {
	userAgent := s.cfg.UserAgent
	if s.cfg.Throttled {
		userAgent = randomUserAgent()
	}
	robots := NewRobotsEnforcer(userAgent, s.logger)
	sitemaps := NewSitemapResolver(s.cfg.RequestTimeout, userAgent, s.logger)

	session := NewSession(SessionParams{
		TenantID:       tenantID,
		Config:         cfg,
		Throttled:      s.cfg.Throttled,
		UserAgent:      userAgent,
		Threads:        s.cfg.Threads,
		Delay:          s.cfg.Delay,
		MaxPages:       s.cfg.MaxPages,
		StorageRoot:    s.cfg.StorageRoot,
		RequestTimeout: s.cfg.RequestTimeout,
	}, s.indexer, robots, sitemaps, s.frontier, s.counter, s.logger)

	return session.Run(ctx)
}
