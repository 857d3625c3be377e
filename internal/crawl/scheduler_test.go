package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/site"
)

type fakeDirectory struct {
	mu       sync.Mutex
	tenants  []site.Site
	statuses map[string]site.CrawlStatus
	written  []site.CrawlStatus
}

func (d *fakeDirectory) List(context.Context) ([]site.Site, error) {
	return d.tenants, nil
}

func (d *fakeDirectory) Status(_ context.Context, id string) (site.CrawlStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, ok := d.statuses[id]
	if !ok {
		return site.CrawlStatus{SiteID: id}, nil
	}
	return status, nil
}

func (d *fakeDirectory) PutStatus(_ context.Context, status site.CrawlStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, status)
	return nil
}

func (d *fakeDirectory) writtenFor(id string) []site.CrawlStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []site.CrawlStatus
	for _, s := range d.written {
		if s.SiteID == id {
			out = append(out, s)
		}
	}
	return out
}

type fakeCrawler struct {
	mu    sync.Mutex
	calls []string
	run   func(tenantID string, cfg site.CrawlConfig) (Result, error)
}

func (c *fakeCrawler) Crawl(_ context.Context, tenantID string, cfg site.CrawlConfig) (Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, tenantID+" "+cfg.URL)
	c.mu.Unlock()
	if c.run != nil {
		return c.run(tenantID, cfg)
	}
	return Result{PageCount: 1, Visited: []string{cfg.URL}}, nil
}

type fakePurger struct {
	mu     sync.Mutex
	purged []string
	err    error
}

func (p *fakePurger) DeleteAllForTenant(_ context.Context, tenantID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.purged = append(p.purged, tenantID)
	return 1, nil
}

type fakeCleaner struct {
	mu    sync.Mutex
	swept []string
}

func (c *fakeCleaner) RemoveObsolete(_ context.Context, tenantID string, _ time.Duration) (*CleanupResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swept = append(c.swept, tenantID)
	return nil, nil
}

func testTenants(n int) []site.Site {
	tenants := make([]site.Site, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("tenant-%d", i)
		tenants = append(tenants, site.Site{
			ID:      id,
			Type:    site.DocTypeSite,
			Configs: []site.CrawlConfig{{URL: "https://" + id + ".example.com"}},
		})
	}
	return tenants
}

func newTestScheduler(directory SiteDirectory, crawler Crawler, purger TenantPurger, cleaner ObsoleteRemover) *Scheduler {
	return NewScheduler(SchedulerConfig{
		PoolCap:         4,
		TaskTimeout:     5 * time.Second,
		RecrawlInterval: 12 * time.Hour,
		Retention:       48 * time.Hour,
	}, directory, crawler, purger, cleaner, fixedClock{time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}, zap.NewNop())
}

func TestSchedulerRunsAllDueTenants(t *testing.T) {
	directory := &fakeDirectory{tenants: testTenants(5), statuses: map[string]site.CrawlStatus{}}
	crawler := &fakeCrawler{}
	cleaner := &fakeCleaner{}
	scheduler := newTestScheduler(directory, crawler, &fakePurger{}, cleaner)

	report, err := scheduler.RunDue(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, report.Tenants, 5)
	for _, tr := range report.Tenants {
		assert.NoError(t, tr.Err)
		assert.False(t, tr.TimedOut)
		assert.Equal(t, 1, tr.PageCount)
	}
	assert.Len(t, directory.written, 5)
	assert.Len(t, cleaner.swept, 5)
	assert.False(t, report.FatalRestart)
}

func TestSchedulerSkipsRecentlyCrawled(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	directory := &fakeDirectory{
		tenants: testTenants(2),
		statuses: map[string]site.CrawlStatus{
			"tenant-0": {SiteID: "tenant-0", Crawled: now.Add(-time.Hour)},
			"tenant-1": {SiteID: "tenant-1", Crawled: now.Add(-24 * time.Hour)},
		},
	}
	crawler := &fakeCrawler{}
	scheduler := newTestScheduler(directory, crawler, &fakePurger{}, &fakeCleaner{})

	report, err := scheduler.RunDue(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, report.Tenants, 1)
	assert.Equal(t, "tenant-1", report.Tenants[0].SiteID)
}

func TestSchedulerForcePurgesFirst(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	directory := &fakeDirectory{
		tenants: testTenants(2),
		statuses: map[string]site.CrawlStatus{
			"tenant-0": {SiteID: "tenant-0", Crawled: now},
			"tenant-1": {SiteID: "tenant-1", Crawled: now},
		},
	}
	purger := &fakePurger{}
	scheduler := newTestScheduler(directory, &fakeCrawler{}, purger, &fakeCleaner{})

	report, err := scheduler.RunDue(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, report.Tenants, 2)
	assert.ElementsMatch(t, []string{"tenant-0", "tenant-1"}, purger.purged)
}

func TestSchedulerPurgeFailureSkipsTenant(t *testing.T) {
	directory := &fakeDirectory{tenants: testTenants(1), statuses: map[string]site.CrawlStatus{}}
	crawler := &fakeCrawler{}
	purger := &fakePurger{err: errors.New("index unavailable")}
	scheduler := newTestScheduler(directory, crawler, purger, &fakeCleaner{})

	report, err := scheduler.RunDue(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, report.Tenants, 1)
	assert.Error(t, report.Tenants[0].Err)
	assert.Empty(t, crawler.calls)
}

func TestSchedulerSiblingConfigFailureIsolated(t *testing.T) {
	tenant := site.Site{
		ID:   "tenant-0",
		Type: site.DocTypeSite,
		Configs: []site.CrawlConfig{
			{URL: "https://bad.example.com"},
			{URL: "https://good.example.com"},
		},
	}
	directory := &fakeDirectory{tenants: []site.Site{tenant}, statuses: map[string]site.CrawlStatus{}}
	crawler := &fakeCrawler{run: func(_ string, cfg site.CrawlConfig) (Result, error) {
		if cfg.URL == "https://bad.example.com" {
			return Result{}, errors.New("seed unreachable")
		}
		return Result{PageCount: 3}, nil
	}}
	scheduler := newTestScheduler(directory, crawler, &fakePurger{}, &fakeCleaner{})

	report, err := scheduler.RunDue(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, report.Tenants, 1)
	assert.Error(t, report.Tenants[0].Err)
	assert.Equal(t, 3, report.Tenants[0].PageCount)

	written := directory.writtenFor("tenant-0")
	require.Len(t, written, 1)
	assert.Equal(t, 3, written[0].PageCount)
}

func TestSchedulerFatalRestartPropagates(t *testing.T) {
	directory := &fakeDirectory{tenants: testTenants(3), statuses: map[string]site.CrawlStatus{}}
	crawler := &fakeCrawler{run: func(tenantID string, cfg site.CrawlConfig) (Result, error) {
		if tenantID == "tenant-1" {
			return Result{}, fmt.Errorf("restart after purge failed: %w", ErrForceRestart)
		}
		return Result{PageCount: 1}, nil
	}}
	scheduler := newTestScheduler(directory, crawler, &fakePurger{}, &fakeCleaner{})

	report, err := scheduler.RunDue(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, report.FatalRestart)
	assert.Len(t, report.Tenants, 3)
}

func TestSchedulerAbandonsTimedOutTenant(t *testing.T) {
	directory := &fakeDirectory{tenants: testTenants(2), statuses: map[string]site.CrawlStatus{}}
	blocked := make(chan struct{})
	crawler := &fakeCrawler{run: func(tenantID string, cfg site.CrawlConfig) (Result, error) {
		if tenantID == "tenant-0" {
			<-blocked
		}
		return Result{PageCount: 1}, nil
	}}
	scheduler := NewScheduler(SchedulerConfig{
		PoolCap:         4,
		TaskTimeout:     50 * time.Millisecond,
		RecrawlInterval: 12 * time.Hour,
		Retention:       48 * time.Hour,
	}, directory, crawler, &fakePurger{}, &fakeCleaner{}, fixedClock{time.Now()}, zap.NewNop())

	report, err := scheduler.RunDue(context.Background(), false)
	close(blocked)
	require.NoError(t, err)
	require.Len(t, report.Tenants, 2)

	byID := map[string]TenantReport{}
	for _, tr := range report.Tenants {
		byID[tr.SiteID] = tr
	}
	assert.True(t, byID["tenant-0"].TimedOut)
	assert.False(t, byID["tenant-1"].TimedOut)
	assert.Equal(t, 1, byID["tenant-1"].PageCount)
}
