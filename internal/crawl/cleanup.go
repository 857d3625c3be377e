package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/index"
	"github.com/loxal/page-finder-service/internal/page"
)

// CleanupResult reports one retention sweep for one tenant.
type CleanupResult struct {
	Deleted int
	Failed  int
}

// Cleaner removes pages that no crawl has touched within the retention
// window. A page untouched for that long no longer exists on the site or is
// no longer reachable from any configured seed.
type Cleaner struct {
	client *index.Client
	clock  page.Clock
	logger *zap.Logger
}

// NewCleaner constructs a Cleaner on the shared index client.
func NewCleaner(client *index.Client, clock page.Clock, logger *zap.Logger) *Cleaner {
	return &Cleaner{client: client, clock: clock, logger: logger}
}

// RemoveObsolete deletes the tenant's pages last updated before now minus
// retention. It returns nil when nothing was deleted and nothing failed.
func (c *Cleaner) RemoveObsolete(ctx context.Context, tenantID string, retention time.Duration) (*CleanupResult, error) {
	cutoff := c.clock.Now().UTC().Add(-retention).Format(time.RFC3339)
	query := map[string]any{
		"bool": map[string]any{
			"filter": []any{
				map[string]any{"term": map[string]any{"finder": tenantID}},
				map[string]any{"range": map[string]any{"updated": map[string]any{"lt": cutoff}}},
			},
		},
	}

	c.logObsolete(ctx, tenantID, query)

	result, err := c.client.DeleteByQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("remove obsolete pages for %s: %w", tenantID, err)
	}
	if result.Deleted == 0 && len(result.Failures) == 0 {
		return nil, nil
	}
	cleanupDeletedTotal.Add(float64(result.Deleted))
	if len(result.Failures) > 0 {
		c.logger.Warn("cleanup reported failures",
			zap.String("tenant", tenantID),
			zap.Int("deleted", result.Deleted),
			zap.Int("failed", len(result.Failures)),
		)
	}
	return &CleanupResult{Deleted: result.Deleted, Failed: len(result.Failures)}, nil
}

// logObsolete lists the URLs about to be removed. It is diagnostic only; a
// failed lookup never blocks the deletion itself.
func (c *Cleaner) logObsolete(ctx context.Context, tenantID string, query map[string]any) {
	result, err := c.client.Search(ctx, map[string]any{"query": query})
	if err != nil {
		c.logger.Debug("obsolete page listing failed", zap.String("tenant", tenantID), zap.Error(err))
		return
	}
	for _, hit := range result.Hits {
		var doc struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		c.logger.Info("removing obsolete page",
			zap.String("tenant", tenantID),
			zap.String("url", doc.URL),
		)
	}
}
