package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/config"
	"github.com/loxal/page-finder-service/internal/crawl"
	"github.com/loxal/page-finder-service/internal/index"
	"github.com/loxal/page-finder-service/internal/index/indextest"
	"github.com/loxal/page-finder-service/internal/page"
	"github.com/loxal/page-finder-service/internal/site"
)

type fakeRunner struct {
	mu      sync.Mutex
	tenants []string
	passes  int
	started chan struct{}
}

func (r *fakeRunner) RunTenant(_ context.Context, tenant site.Site, _ bool) crawl.TenantReport {
	r.mu.Lock()
	r.tenants = append(r.tenants, tenant.ID)
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	return crawl.TenantReport{SiteID: tenant.ID, PageCount: 1}
}

func (r *fakeRunner) RunDue(context.Context, bool) (crawl.Report, error) {
	r.mu.Lock()
	r.passes++
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	return crawl.Report{}, nil
}

type fakeProgress struct{ pages int64 }

func (p fakeProgress) Progress(string) int64 { return p.pages }

type apiFixture struct {
	engine *indextest.Server
	store  *site.Store
	runner *fakeRunner
	server *httptest.Server
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	engine := indextest.New()
	t.Cleanup(engine.Close)
	logger := zap.NewNop()
	client := index.NewClient(engine.URL(), "pagefinder", "admin-secret", 5*time.Second, logger)
	store := site.NewStore(client, logger)
	repo := page.NewRepo(client, fixedClock{time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}, logger)
	runner := &fakeRunner{started: make(chan struct{}, 8)}

	cfg := config.Config{}
	cfg.Auth.AdminSecret = "admin-secret"
	srv := NewServer(store, runner, fakeProgress{pages: 7}, repo, client, cfg, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &apiFixture{engine: engine, store: store, runner: runner, server: ts}
}

func (f *apiFixture) do(t *testing.T, method, path, secret string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set("X-Site-Secret", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateSite(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/v1/sites", "", siteRequest{
		Email:   "owner@example.com",
		Configs: []site.CrawlConfig{{URL: "https://example.com"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[site.Site](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Secret)
	assert.Equal(t, "owner@example.com", created.Email)
}

func TestCreateSiteValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/sites", "", siteRequest{
		Email:   "not-an-email",
		Configs: []site.CrawlConfig{{URL: "https://example.com"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/sites", "", siteRequest{Email: "owner@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateSiteSecretCheck(t *testing.T) {
	f := newFixture(t)
	tenant, err := f.store.Create(context.Background(), "owner@example.com",
		[]site.CrawlConfig{{URL: "https://example.com"}})
	require.NoError(t, err)

	resp := f.do(t, http.MethodPut, "/v1/sites/"+tenant.ID, "wrong", siteRequest{
		Email:   "new@example.com",
		Configs: tenant.Configs,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/v1/sites/"+tenant.ID, tenant.Secret, siteRequest{
		Email:   "new@example.com",
		Configs: tenant.Configs,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[site.Site](t, resp)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, tenant.Secret, updated.Secret)
}

func TestTriggerCrawl(t *testing.T) {
	f := newFixture(t)
	tenant, err := f.store.Create(context.Background(), "owner@example.com",
		[]site.CrawlConfig{{URL: "https://example.com"}})
	require.NoError(t, err)

	resp := f.do(t, http.MethodPost, "/v1/sites/"+tenant.ID+"/crawl", "wrong", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/sites/"+tenant.ID+"/crawl", tenant.Secret, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-f.runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("crawl was never started")
	}
	assert.Equal(t, []string{tenant.ID}, f.runner.tenants)
}

func TestCrawlStatusAndProgress(t *testing.T) {
	f := newFixture(t)
	tenant, err := f.store.Create(context.Background(), "owner@example.com",
		[]site.CrawlConfig{{URL: "https://example.com"}})
	require.NoError(t, err)
	crawled := time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.PutStatus(context.Background(), site.CrawlStatus{
		SiteID: tenant.ID, Crawled: crawled, PageCount: 42,
	}))

	resp := f.do(t, http.MethodGet, "/v1/sites/"+tenant.ID+"/status", tenant.Secret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[site.CrawlStatus](t, resp)
	assert.Equal(t, 42, status.PageCount)
	assert.True(t, status.Crawled.Equal(crawled))

	resp = f.do(t, http.MethodGet, "/v1/sites/"+tenant.ID+"/progress", tenant.Secret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	progress := decode[map[string]any](t, resp)
	assert.EqualValues(t, 7, progress["pages"])
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	tenant, err := f.store.Create(context.Background(), "owner@example.com",
		[]site.CrawlConfig{{URL: "https://example.com"}})
	require.NoError(t, err)

	f.engine.Put(page.ID(tenant.ID, "https://example.com/go"), map[string]any{
		"finder": tenant.ID, "url": "https://example.com/go",
		"title": "Go Guide", "body": "concurrency with goroutines",
	})
	f.engine.Put(page.ID(tenant.ID, "https://example.com/js"), map[string]any{
		"finder": tenant.ID, "url": "https://example.com/js",
		"title": "JS Guide", "body": "event loops",
	})
	f.engine.Put(page.ID("other", "https://example.com/go"), map[string]any{
		"finder": "other", "url": "https://example.com/go",
		"title": "Foreign", "body": "concurrency with goroutines",
	})

	resp := f.do(t, http.MethodGet, "/v1/sites/"+tenant.ID+"/search?q=goroutines", tenant.Secret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[searchResponse](t, resp)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "https://example.com/go", result.Results[0].URL)
	assert.Equal(t, "Go Guide", result.Results[0].Title)

	resp = f.do(t, http.MethodGet, "/v1/sites/"+tenant.ID+"/search", tenant.Secret, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeletePage(t *testing.T) {
	f := newFixture(t)
	tenant, err := f.store.Create(context.Background(), "owner@example.com",
		[]site.CrawlConfig{{URL: "https://example.com"}})
	require.NoError(t, err)

	pageURL := "https://example.com/old"
	f.engine.Put(page.ID(tenant.ID, pageURL), map[string]any{
		"finder": tenant.ID, "url": pageURL, "title": "Old", "body": "stale",
	})

	resp := f.do(t, http.MethodDelete, "/v1/sites/"+tenant.ID+"/pages?url="+pageURL, tenant.Secret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, found := f.engine.Doc(page.ID(tenant.ID, pageURL))
	assert.False(t, found)

	resp = f.do(t, http.MethodDelete, "/v1/sites/"+tenant.ID+"/pages?url="+pageURL, tenant.Secret, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	tenant, err := f.store.Create(context.Background(), "owner@example.com",
		[]site.CrawlConfig{{URL: "https://example.com"}})
	require.NoError(t, err)

	f.engine.Put(page.ID(tenant.ID, "https://example.com/go"), map[string]any{
		"finder": tenant.ID, "url": "https://example.com/go",
		"title": "Getting Started with Go", "body": "intro",
	})
	f.engine.Put(page.ID(tenant.ID, "https://example.com/js"), map[string]any{
		"finder": tenant.ID, "url": "https://example.com/js",
		"title": "JavaScript Basics", "body": "intro",
	})

	resp := f.do(t, http.MethodGet, "/v1/sites/"+tenant.ID+"/suggest?q=Getting+Started", tenant.Secret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[searchResponse](t, resp)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "Getting Started with Go", result.Results[0].Title)
}

func TestDeletePagesBatch(t *testing.T) {
	f := newFixture(t)
	tenant, err := f.store.Create(context.Background(), "owner@example.com",
		[]site.CrawlConfig{{URL: "https://example.com"}})
	require.NoError(t, err)

	urls := []string{"https://example.com/a", "https://example.com/b"}
	for _, u := range urls {
		f.engine.Put(page.ID(tenant.ID, u), map[string]any{
			"finder": tenant.ID, "url": u, "title": u, "body": "x",
		})
	}
	keep := page.ID(tenant.ID, "https://example.com/keep")
	f.engine.Put(keep, map[string]any{
		"finder": tenant.ID, "url": "https://example.com/keep", "title": "keep", "body": "x",
	})

	resp := f.do(t, http.MethodDelete, "/v1/sites/"+tenant.ID+"/pages", tenant.Secret,
		map[string]any{"urls": urls})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[map[string]any](t, resp)
	assert.EqualValues(t, 2, out["deleted"])
	_, found := f.engine.Doc(keep)
	assert.True(t, found)
}

func TestAdminRecrawl(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/v1/admin/recrawl", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, f.server.URL+"/v1/admin/recrawl", nil)
	require.NoError(t, err)
	req.Header.Set("X-Admin-Secret", "admin-secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-f.runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("recrawl pass was never started")
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
