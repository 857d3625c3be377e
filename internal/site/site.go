// Package site defines tenants, their crawl configs, and crawl status
// records.
package site

import (
	"crypto/subtle"
	"time"
)

// CrawlConfig describes one crawl of one seed for a tenant. A tenant may own
// several configs; they are crawled independently and their results merged.
type CrawlConfig struct {
	URL         string `json:"url"`
	Selector    string `json:"selector"`
	SitemapOnly bool   `json:"sitemapOnly"`
	AllowQuery  bool   `json:"allowQuery"`
}

// Site is one tenant: an independent customer namespace with its own
// credential and content.
type Site struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Secret  string        `json:"secret"`
	Email   string        `json:"email"`
	Configs []CrawlConfig `json:"configs"`
}

// DocTypeSite marks tenant profile documents so they can be listed apart
// from pages and status records sharing the index.
const DocTypeSite = "site"

// Authorize reports whether the presented secret grants access to this
// tenant. Comparison is constant-time.
func (s Site) Authorize(secret string) bool {
	if s.Secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s.Secret), []byte(secret)) == 1
}

// CrawlStatus is the single per-tenant record the scheduler reads to decide
// re-crawl eligibility. It is written once per tenant per pass, never
// partially.
type CrawlStatus struct {
	SiteID    string    `json:"siteId"`
	Crawled   time.Time `json:"crawled"`
	PageCount int       `json:"pageCount"`
}

// Due reports whether the tenant's last crawl is older than the interval.
func (s CrawlStatus) Due(now time.Time, interval time.Duration) bool {
	return s.Crawled.Before(now.Add(-interval))
}
