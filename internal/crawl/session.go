package crawl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/extract"
	"github.com/loxal/page-finder-service/internal/page"
	"github.com/loxal/page-finder-service/internal/site"
)

// SessionState is the lifecycle state of one crawl session.
type SessionState string

// Session lifecycle states.
const (
	SessionConfigured         SessionState = "configured"
	SessionRunning            SessionState = "running"
	SessionCompleted          SessionState = "completed"
	SessionFailedStorage      SessionState = "failed_storage"
	SessionRetryingAfterPurge SessionState = "retrying_after_purge"
	SessionFatal              SessionState = "fatal"
)

// PageIndexer persists extracted pages.
type PageIndexer interface {
	Upsert(ctx context.Context, tenantID string, draft page.Draft) (page.Page, error)
}

// SessionParams configures one crawl of one seed for one tenant.
type SessionParams struct {
	TenantID       string
	Config         site.CrawlConfig
	Throttled      bool
	UserAgent      string
	Threads        int
	Delay          time.Duration
	MaxPages       int
	StorageRoot    string
	RequestTimeout time.Duration
}

// Result is the ephemeral outcome of one session: the frontier engine's
// visited-URL list and its length as the page count.
type Result struct {
	PageCount int
	Visited   []string
}

// Session runs one crawl against one seed (or sitemap-derived seed set),
// including the retry-on-storage-failure policy.
type Session struct {
	params   SessionParams
	indexer  PageIndexer
	robots   RobotsPolicy
	sitemaps *SitemapResolver
	frontier FrontierFactory
	counter  *ProgressCounter
	logger   *zap.Logger

	state SessionState
}

// NewSession constructs a Session in the Configured state.
func NewSession(
	params SessionParams,
	indexer PageIndexer,
	robots RobotsPolicy,
	sitemaps *SitemapResolver,
	frontier FrontierFactory,
	counter *ProgressCounter,
	logger *zap.Logger,
) *Session {
	return &Session{
		params:   params,
		indexer:  indexer,
		robots:   robots,
		sitemaps: sitemaps,
		frontier: frontier,
		counter:  counter,
		logger:   logger,
		state:    SessionConfigured,
	}
}

// State reports the session's current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// Run executes the session. A frontier storage failure purges the run's
// local storage directory and retries startup exactly once; a second failure
// is fatal and reported as ErrForceRestart.
func (s *Session) Run(ctx context.Context) (Result, error) {
	defer s.counter.Clear(s.params.TenantID)
	cfg := s.params.Config
	runDir := s.runStorageDir()
	threads := s.params.Threads
	delay := s.params.Delay
	if s.params.Throttled {
		threads = 1
		if delay < time.Second {
			delay = time.Second
		}
	}

	filter := NewFilter(cfg.URL, cfg.AllowQuery, s.robots, s.logger)
	seeds, followLinks := s.resolveSeeds(ctx, cfg)

	frontierCfg := FrontierConfig{
		StorageDir:     runDir,
		Threads:        threads,
		Delay:          delay,
		UserAgent:      s.params.UserAgent,
		MaxPages:       s.params.MaxPages,
		RequestTimeout: s.params.RequestTimeout,
		FollowLinks:    followLinks,
		Admit:          s.admitFunc(ctx, filter),
		Visit:          s.visitFunc(ctx, cfg.Selector),
	}

	visited, err := s.start(ctx, frontierCfg, seeds)
	if errors.Is(err, ErrFrontierStorage) {
		s.state = SessionFailedStorage
		s.logger.Warn("frontier storage failed; purging run directory",
			zap.String("tenant", s.params.TenantID),
			zap.String("dir", runDir),
			zap.Error(err),
		)
		s.purge(runDir)
		s.state = SessionRetryingAfterPurge
		visited, err = s.start(ctx, frontierCfg, seeds)
		if err != nil {
			s.state = SessionFatal
			crawlRunsTotal.WithLabelValues("fatal").Inc()
			return Result{}, fmt.Errorf("frontier restart after purge failed: %v: %w", err, ErrForceRestart)
		}
	} else if err != nil {
		crawlRunsTotal.WithLabelValues("failed").Inc()
		return Result{}, err
	}

	s.state = SessionCompleted
	crawlRunsTotal.WithLabelValues("completed").Inc()
	return Result{PageCount: len(visited), Visited: visited}, nil
}

func (s *Session) start(ctx context.Context, cfg FrontierConfig, seeds []string) ([]string, error) {
	frontier, err := s.frontier(cfg)
	if err != nil {
		return nil, err
	}
	s.state = SessionRunning
	return frontier.Run(ctx, seeds)
}

// resolveSeeds returns the seed set and whether link following stays
// enabled. Sitemap-only mode is honored only when the sitemap is confirmed
// reachable; otherwise the session falls back to a single-seed crawl.
func (s *Session) resolveSeeds(ctx context.Context, cfg site.CrawlConfig) ([]string, bool) {
	if !cfg.SitemapOnly {
		return []string{cfg.URL}, true
	}
	if !s.sitemaps.Exists(ctx, cfg.URL) {
		s.logger.Info("sitemap unreachable; falling back to single-seed crawl",
			zap.String("tenant", s.params.TenantID),
			zap.String("url", cfg.URL),
		)
		return []string{cfg.URL}, true
	}
	seeds := s.sitemaps.Resolve(ctx, cfg.URL)
	if len(seeds) == 0 {
		s.logger.Warn("sitemap resolved to no URLs; falling back to single-seed crawl",
			zap.String("tenant", s.params.TenantID),
			zap.String("url", cfg.URL),
		)
		return []string{cfg.URL}, true
	}
	return seeds, false
}

// admitFunc gates traversal. Panics inside admission deny the link rather
// than aborting the crawl.
func (s *Session) admitFunc(ctx context.Context, filter *Filter) func(string) bool {
	return func(raw string) (allowed bool) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("admission panicked; denying link",
					zap.String("url", raw),
					zap.Any("panic", r),
				)
				allowed = false
			}
		}()
		return filter.Allow(ctx, raw)
	}
}

// visitFunc dispatches fetched pages to the matching extractor and the
// upsert path. The frontier fetches admitted PDFs like any other URL, seeds
// included, so their bodies are extracted here rather than refetched.
func (s *Session) visitFunc(ctx context.Context, selector string) func(PageVisit) {
	return func(visit PageVisit) {
		if IsPDF(visit.URL) {
			s.indexPDF(ctx, visit)
			return
		}
		content := extract.HTML(string(visit.Body), selector, s.logger)
		s.index(ctx, page.Draft{
			Title:     content.Title,
			Body:      content.Body,
			URL:       visit.URL,
			Labels:    content.Labels,
			Thumbnail: content.Thumbnail,
		})
	}
}

// indexPDF indexes the extracted text of a fetched PDF. Extraction failures
// are logged and skipped; they never abort the crawl.
func (s *Session) indexPDF(ctx context.Context, visit PageVisit) {
	content, err := extract.PDF(visit.Body, s.logger)
	if err != nil {
		pagesSkippedTotal.Inc()
		s.logger.Warn("pdf extraction failed; skipping page", zap.String("url", visit.URL), zap.Error(err))
		return
	}
	s.index(ctx, page.Draft{
		Title:  content.Title,
		Body:   content.Body,
		URL:    visit.URL,
		Labels: content.Labels,
	})
}

// index upserts one draft. A failed write is reported to the log and the
// skip counter, not to the caller; the crawl continues.
func (s *Session) index(ctx context.Context, draft page.Draft) {
	if _, err := s.indexer.Upsert(ctx, s.params.TenantID, draft); err != nil {
		pagesSkippedTotal.Inc()
		s.logger.Error("page upsert failed",
			zap.String("tenant", s.params.TenantID),
			zap.String("url", draft.URL),
			zap.Error(err),
		)
		return
	}
	pagesIndexedTotal.Inc()
	count := s.counter.Inc(s.params.TenantID)
	if count%100 == 0 {
		s.logger.Info("crawl progress",
			zap.String("tenant", s.params.TenantID),
			zap.Int64("pages", count),
		)
	}
}

// runStorageDir builds a storage location unique to this run so repeated
// runs never contend on frontier files.
func (s *Session) runStorageDir() string {
	name := fmt.Sprintf("%s-%s-%d", s.params.TenantID, uuid.NewString(), time.Now().UTC().Unix())
	return filepath.Join(s.params.StorageRoot, name)
}

// purge removes the run's local storage, best effort: files that cannot be
// removed are logged and skipped.
func (s *Session) purge(dir string) {
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("purge walk error", zap.String("path", p), zap.Error(err))
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if rmErr := os.Remove(p); rmErr != nil {
			s.logger.Warn("purge could not remove file", zap.String("path", p), zap.Error(rmErr))
		}
		return nil
	})
	if walkErr != nil {
		s.logger.Warn("purge walk failed", zap.String("dir", dir), zap.Error(walkErr))
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("purge could not remove directory", zap.String("dir", dir), zap.Error(err))
	}
}
