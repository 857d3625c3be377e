package crawl

import "sync"

// ProgressCounter tracks pages indexed per tenant during a run, for progress
// logging only. Safe under concurrent increments; cleared at session end.
type ProgressCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewProgressCounter constructs an empty counter set.
func NewProgressCounter() *ProgressCounter {
	return &ProgressCounter{counts: make(map[string]int64)}
}

// Inc increments the tenant's counter and returns the new value.
func (c *ProgressCounter) Inc(tenantID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[tenantID]++
	return c.counts[tenantID]
}

// Get returns the tenant's current count.
func (c *ProgressCounter) Get(tenantID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[tenantID]
}

// Clear drops the tenant's counter.
func (c *ProgressCounter) Clear(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, tenantID)
}
