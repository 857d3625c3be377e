package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/loxal/page-finder-service/internal/page"
	"github.com/loxal/page-finder-service/internal/site"
)

// SiteDirectory is the tenant registry the scheduler plans from.
type SiteDirectory interface {
	List(ctx context.Context) ([]site.Site, error)
	Status(ctx context.Context, id string) (site.CrawlStatus, error)
	PutStatus(ctx context.Context, status site.CrawlStatus) error
}

// TenantPurger drops every page a tenant owns ahead of a forced reindex.
type TenantPurger interface {
	DeleteAllForTenant(ctx context.Context, tenantID string) (int, error)
}

// ObsoleteRemover sweeps pages no crawl has refreshed within the retention
// window.
type ObsoleteRemover interface {
	RemoveObsolete(ctx context.Context, tenantID string, retention time.Duration) (*CleanupResult, error)
}

// SchedulerConfig carries the pass-level knobs.
type SchedulerConfig struct {
	PoolCap         int64
	TaskTimeout     time.Duration
	RecrawlInterval time.Duration
	Retention       time.Duration
}

// TenantReport is the outcome of one tenant's task within a pass.
type TenantReport struct {
	SiteID    string
	PageCount int
	TimedOut  bool
	Err       error
}

// Report aggregates one scheduler pass. FatalRestart means at least one
// tenant's crawl could not recover from frontier storage failure and the
// process should be restarted by its supervisor.
type Report struct {
	Tenants      []TenantReport
	FatalRestart bool
}

// Scheduler fans due tenants out over a bounded worker pool, one task per
// tenant per pass.
type Scheduler struct {
	cfg       SchedulerConfig
	directory SiteDirectory
	crawler   Crawler
	purger    TenantPurger
	cleaner   ObsoleteRemover
	clock     page.Clock
	logger    *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(
	cfg SchedulerConfig,
	directory SiteDirectory,
	crawler Crawler,
	purger TenantPurger,
	cleaner ObsoleteRemover,
	clock page.Clock,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		directory: directory,
		crawler:   crawler,
		purger:    purger,
		cleaner:   cleaner,
		clock:     clock,
		logger:    logger,
	}
}

// RunDue crawls every tenant whose last crawl is older than the recrawl
// interval. With force set it crawls all tenants and purges their pages
// first. Tenants run concurrently up to the pool cap; a tenant that outlives
// the task timeout is abandoned and reported, never waited on.
func (s *Scheduler) RunDue(ctx context.Context, force bool) (Report, error) {
	tenants, err := s.directory.List(ctx)
	if err != nil {
		return Report{}, err
	}

	due := s.selectDue(ctx, tenants, force)
	if len(due) == 0 {
		s.logger.Info("no tenants due for crawling")
		return Report{}, nil
	}

	width := s.cfg.PoolCap
	if int64(len(due)) < width {
		width = int64(len(due))
	}
	sem := semaphore.NewWeighted(width)

	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
	)
	for _, tenant := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			report.Tenants = append(report.Tenants, TenantReport{SiteID: tenant.ID, Err: err})
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(tenant site.Site) {
			defer wg.Done()
			defer sem.Release(1)
			activeTenantTasks.Inc()
			defer activeTenantTasks.Dec()

			tr := s.runWithTimeout(ctx, tenant, force)
			mu.Lock()
			report.Tenants = append(report.Tenants, tr)
			if errors.Is(tr.Err, ErrForceRestart) {
				report.FatalRestart = true
			}
			mu.Unlock()
		}(tenant)
	}
	wg.Wait()
	return report, nil
}

// RunTenant runs a single tenant's crawl immediately, outside the due-based
// planning, under the same task timeout.
func (s *Scheduler) RunTenant(ctx context.Context, tenant site.Site, force bool) TenantReport {
	activeTenantTasks.Inc()
	defer activeTenantTasks.Dec()
	return s.runWithTimeout(ctx, tenant, force)
}

// Watch runs RunDue on a fixed cadence until the context is canceled.
func (s *Scheduler) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := s.RunDue(ctx, false)
		if err != nil {
			s.logger.Error("scheduler pass failed", zap.Error(err))
		} else if report.FatalRestart {
			return ErrForceRestart
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// selectDue filters tenants by their crawl-status age. A tenant whose
// status cannot be read is reported in the log and skipped for this pass.
func (s *Scheduler) selectDue(ctx context.Context, tenants []site.Site, force bool) []site.Site {
	if force {
		return tenants
	}
	now := s.clock.Now()
	var due []site.Site
	for _, tenant := range tenants {
		status, err := s.directory.Status(ctx, tenant.ID)
		if err != nil {
			s.logger.Warn("crawl status unreadable; skipping tenant this pass",
				zap.String("tenant", tenant.ID),
				zap.Error(err),
			)
			continue
		}
		if status.Due(now, s.cfg.RecrawlInterval) {
			due = append(due, tenant)
		}
	}
	return due
}

// runWithTimeout bounds one tenant task. On timeout the task keeps running
// in its abandoned goroutine until its context fires; the pass moves on.
func (s *Scheduler) runWithTimeout(ctx context.Context, tenant site.Site, force bool) TenantReport {
	taskCtx, cancel := context.WithTimeout(ctx, s.cfg.TaskTimeout)
	defer cancel()

	done := make(chan TenantReport, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("tenant task panicked",
					zap.String("tenant", tenant.ID),
					zap.Any("panic", r),
				)
				done <- TenantReport{SiteID: tenant.ID, Err: fmt.Errorf("tenant task panicked: %v", r)}
			}
		}()
		done <- s.runTenant(taskCtx, tenant, force)
	}()

	select {
	case tr := <-done:
		return tr
	case <-taskCtx.Done():
		s.logger.Error("tenant task timed out; abandoning",
			zap.String("tenant", tenant.ID),
			zap.Duration("timeout", s.cfg.TaskTimeout),
		)
		return TenantReport{SiteID: tenant.ID, TimedOut: true, Err: taskCtx.Err()}
	}
}

// runTenant crawls every config the tenant owns, then writes exactly one
// status record and runs exactly one retention sweep. Sibling config
// failures are isolated from each other.
func (s *Scheduler) runTenant(ctx context.Context, tenant site.Site, force bool) TenantReport {
	tr := TenantReport{SiteID: tenant.ID}

	if force {
		deleted, err := s.purger.DeleteAllForTenant(ctx, tenant.ID)
		if err != nil {
			s.logger.Error("pre-crawl purge failed; skipping tenant",
				zap.String("tenant", tenant.ID),
				zap.Error(err),
			)
			tr.Err = err
			return tr
		}
		s.logger.Info("purged tenant pages before reindex",
			zap.String("tenant", tenant.ID),
			zap.Int("deleted", deleted),
		)
	}

	for _, cfg := range tenant.Configs {
		result, err := s.crawler.Crawl(ctx, tenant.ID, cfg)
		if err != nil {
			s.logger.Error("crawl failed",
				zap.String("tenant", tenant.ID),
				zap.String("url", cfg.URL),
				zap.Error(err),
			)
			if tr.Err == nil || errors.Is(err, ErrForceRestart) {
				tr.Err = err
			}
			continue
		}
		tr.PageCount += result.PageCount
	}

	status := site.CrawlStatus{
		SiteID:    tenant.ID,
		Crawled:   s.clock.Now().UTC(),
		PageCount: tr.PageCount,
	}
	if err := s.directory.PutStatus(ctx, status); err != nil {
		s.logger.Error("crawl status write failed", zap.String("tenant", tenant.ID), zap.Error(err))
		if tr.Err == nil {
			tr.Err = err
		}
	}

	if _, err := s.cleaner.RemoveObsolete(ctx, tenant.ID, s.cfg.Retention); err != nil {
		s.logger.Error("retention sweep failed", zap.String("tenant", tenant.ID), zap.Error(err))
		if tr.Err == nil {
			tr.Err = err
		}
	}
	return tr
}
