package crawl

import (
	"context"
	"html"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"
)

// staticAssetExtensions is the blacklist of extensions that never carry
// indexable page content.
var staticAssetExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".mjs": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {}, ".bmp": {},
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {},
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {},
	".zip": {}, ".gz": {}, ".tgz": {}, ".tar": {}, ".rar": {}, ".7z": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {}, ".otf": {},
	".xml": {},
}

// Filter decides, per discovered link, whether it is in scope for one crawl.
// Every failure path denies: a link the filter cannot judge is not crawled.
type Filter struct {
	basePrefix string
	allowQuery bool
	robots     RobotsPolicy
	logger     *zap.Logger
}

// NewFilter builds a Filter confining the crawl to baseURL's host/subtree.
func NewFilter(baseURL string, allowQuery bool, robots RobotsPolicy, logger *zap.Logger) *Filter {
	return &Filter{
		basePrefix: strings.ToLower(strings.TrimSpace(baseURL)),
		allowQuery: allowQuery,
		robots:     robots,
		logger:     logger,
	}
}

// Allow applies the admission steps in order: sanitize, extension blacklist,
// base-prefix confinement, robots rules, query-string policy.
func (f *Filter) Allow(ctx context.Context, raw string) bool {
	candidate := SanitizeURL(raw)
	if candidate == "" {
		return false
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		f.logger.Debug("denying unparsable url", zap.String("url", candidate), zap.Error(err))
		return false
	}
	if _, blocked := staticAssetExtensions[strings.ToLower(path.Ext(parsed.Path))]; blocked {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(candidate), f.basePrefix) {
		return false
	}
	if !f.robots.Allowed(ctx, candidate) {
		return false
	}
	if !f.allowQuery && parsed.RawQuery != "" {
		return false
	}
	return true
}

// SanitizeURL decodes HTML entities and strips any trailing markup fragment
// accidentally captured in link text.
func SanitizeURL(raw string) string {
	decoded := html.UnescapeString(raw)
	if i := strings.IndexAny(decoded, "<>"); i >= 0 {
		decoded = decoded[:i]
	}
	return strings.TrimSpace(decoded)
}

// IsPDF reports whether the URL's path ends in .pdf.
func IsPDF(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf")
}
