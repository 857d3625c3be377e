// Package page defines the indexed page record and its deterministic identity.
package page

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Page is one indexed document, owned by exactly one tenant. A re-crawl
// replaces the whole record; no field survives from a prior version.
type Page struct {
	ID        string    `json:"id"`
	Finder    string    `json:"finder"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	URL       string    `json:"url"`
	Updated   time.Time `json:"updated"`
	Labels    []string  `json:"labels"`
	Thumbnail string    `json:"thumbnail"`
}

// Draft is the extractor's output before identity and timestamps are applied.
type Draft struct {
	Title     string
	Body      string
	URL       string
	Labels    []string
	Thumbnail string
}

// ID derives the page identifier from the tenant and the canonical URL.
// Index, lookup, and delete must all agree on this value, so it is the single
// place identity is computed.
func ID(tenantID, url string) string {
	sum := sha256.Sum256([]byte(tenantID + url))
	return hex.EncodeToString(sum[:])
}
