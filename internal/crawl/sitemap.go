package crawl

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const maxSitemapDepth = 8

type sitemapURL struct {
	Loc string `xml:"loc"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapRef struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

// SitemapResolver discovers seed URLs from a site's sitemap.xml, recursing
// through sitemap indexes. A failing branch yields an empty result for that
// branch, never a fatal error for the whole resolution.
type SitemapResolver struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewSitemapResolver constructs a resolver.
func NewSitemapResolver(timeout time.Duration, userAgent string, logger *zap.Logger) *SitemapResolver {
	return &SitemapResolver{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Exists probes <root>/sitemap.xml and reports whether it answers with an
// HTTP success.
func (r *SitemapResolver) Exists(ctx context.Context, siteRoot string) bool {
	target, err := sitemapLocation(siteRoot)
	if err != nil {
		r.logger.Warn("bad site root for sitemap probe", zap.String("root", siteRoot), zap.Error(err))
		return false
	}
	_, status, err := r.fetch(ctx, target)
	if err != nil {
		r.logger.Debug("sitemap probe failed", zap.String("sitemap", target), zap.Error(err))
		return false
	}
	return status >= 200 && status < 300
}

// Resolve collects every leaf URL reachable from <root>/sitemap.xml.
func (r *SitemapResolver) Resolve(ctx context.Context, siteRoot string) []string {
	target, err := sitemapLocation(siteRoot)
	if err != nil {
		r.logger.Warn("bad site root for sitemap resolution", zap.String("root", siteRoot), zap.Error(err))
		return nil
	}
	return r.resolve(ctx, target, 0)
}

func (r *SitemapResolver) resolve(ctx context.Context, sitemap string, depth int) []string {
	if depth > maxSitemapDepth {
		r.logger.Warn("sitemap recursion too deep", zap.String("sitemap", sitemap))
		return nil
	}
	body, status, err := r.fetch(ctx, sitemap)
	if err != nil || status < 200 || status >= 300 {
		r.logger.Warn("sitemap branch unavailable",
			zap.String("sitemap", sitemap),
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var urls []string
		for _, ref := range index.Sitemaps {
			urls = append(urls, r.resolve(ctx, ref.Loc, depth+1)...)
		}
		return urls
	}

	var leaf sitemapURLSet
	if err := xml.Unmarshal(body, &leaf); err != nil {
		r.logger.Warn("sitemap parse failed", zap.String("sitemap", sitemap), zap.Error(err))
		return nil
	}
	urls := make([]string, 0, len(leaf.URLs))
	for _, u := range leaf.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	return urls
}

func (r *SitemapResolver) fetch(ctx context.Context, target string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("new sitemap request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch sitemap: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close sitemap body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read sitemap body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func sitemapLocation(siteRoot string) (string, error) {
	parsed, err := url.Parse(siteRoot)
	if err != nil {
		return "", fmt.Errorf("parse site root: %w", err)
	}
	parsed.Path = "/sitemap.xml"
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}
