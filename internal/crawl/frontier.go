package crawl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// PageVisit is delivered for every page the frontier engine fetched
// successfully.
type PageVisit struct {
	URL  string
	Body []byte
}

// FrontierConfig is the narrow contract the pipeline supplies to the
// frontier engine: seeds arrive via Run, everything else here.
type FrontierConfig struct {
	StorageDir     string
	Threads        int
	Delay          time.Duration
	UserAgent      string
	MaxPages       int
	RequestTimeout time.Duration
	// FollowLinks is false in sitemap-only mode.
	FollowLinks bool
	// Admit is invoked per discovered link and gates traversal.
	Admit func(rawURL string) bool
	// Visit is invoked per fetched page.
	Visit func(visit PageVisit)
}

// Frontier runs one crawl over a seed set and reports every URL it recorded
// as visited. A storage-environment failure surfaces as ErrFrontierStorage.
type Frontier interface {
	Run(ctx context.Context, seeds []string) ([]string, error)
}

// FrontierFactory builds a Frontier for one run. Construction fails with
// ErrFrontierStorage when the run's local storage cannot be prepared.
type FrontierFactory func(cfg FrontierConfig) (Frontier, error)

// collyFrontier implements Frontier on the Colly collector.
type collyFrontier struct {
	cfg    FrontierConfig
	logger *zap.Logger
}

// NewCollyFrontier prepares a Colly-backed frontier. The run's storage
// directory is created and probed for writability up front so storage
// failures surface before any fetch.
func NewCollyFrontier(cfg FrontierConfig, logger *zap.Logger) (Frontier, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create storage dir %s: %v", ErrFrontierStorage, cfg.StorageDir, err)
	}
	probe := filepath.Join(cfg.StorageDir, ".frontier")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("%w: storage dir %s not writable: %v", ErrFrontierStorage, cfg.StorageDir, err)
	}
	return &collyFrontier{cfg: cfg, logger: logger}, nil
}

// Run starts the collector over the seeds and blocks until the frontier
// drains.
func (f *collyFrontier) Run(ctx context.Context, seeds []string) ([]string, error) {
	collector := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(f.cfg.UserAgent),
		colly.CacheDir(f.cfg.StorageDir),
	)
	collector.AllowURLRevisit = false
	// Colly's default body ceiling is 10MB, too small for PDF payloads.
	collector.MaxBodySize = 64 << 20
	collector.SetRequestTimeout(f.cfg.RequestTimeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: f.cfg.Threads,
		Delay:       f.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("set frontier limits: %w", err)
	}

	var (
		mu      sync.Mutex
		visited []string
		pages   atomic.Int64
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if f.cfg.MaxPages > 0 && pages.Load() >= int64(f.cfg.MaxPages) {
			r.Abort()
		}
	})

	if f.cfg.FollowLinks {
		collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
			link := e.Request.AbsoluteURL(e.Attr("href"))
			if link == "" || !f.cfg.Admit(link) {
				return
			}
			if err := e.Request.Visit(link); err != nil {
				f.logger.Debug("link visit rejected", zap.String("url", link), zap.Error(err))
			}
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode != 200 || len(r.Body) == 0 {
			f.logger.Warn("skipping response",
				zap.String("url", r.Request.URL.String()),
				zap.Int("status_code", r.StatusCode),
			)
			return
		}
		pages.Add(1)
		pageURL := r.Request.URL.String()
		mu.Lock()
		visited = append(visited, pageURL)
		mu.Unlock()
		f.cfg.Visit(PageVisit{URL: pageURL, Body: append([]byte{}, r.Body...)})
	})

	collector.OnError(func(r *colly.Response, err error) {
		f.logger.Warn("request failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status_code", r.StatusCode),
			zap.Error(err),
		)
	})

	for _, seed := range seeds {
		if err := collector.Visit(seed); err != nil {
			f.logger.Warn("seed visit failed", zap.String("url", seed), zap.Error(err))
		}
	}
	collector.Wait()

	return visited, nil
}
