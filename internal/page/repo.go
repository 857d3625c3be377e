package page

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/index"
)

// Clock abstracts time for upsert timestamps.
type Clock interface {
	Now() time.Time
}

// Repo persists pages in the document store.
type Repo struct {
	client *index.Client
	clock  Clock
	logger *zap.Logger
}

// NewRepo constructs a Repo.
func NewRepo(client *index.Client, clock Clock, logger *zap.Logger) *Repo {
	return &Repo{
		client: client,
		clock:  clock,
		logger: logger,
	}
}

// Upsert writes the full page record keyed by its deterministic identifier
// and returns the freshly persisted version. The write is a full replace.
func (r *Repo) Upsert(ctx context.Context, tenantID string, draft Draft) (Page, error) {
	p := Page{
		ID:        ID(tenantID, draft.URL),
		Finder:    tenantID,
		Title:     draft.Title,
		Body:      draft.Body,
		URL:       draft.URL,
		Updated:   r.clock.Now(),
		Labels:    draft.Labels,
		Thumbnail: draft.Thumbnail,
	}
	if p.Labels == nil {
		p.Labels = []string{}
	}
	if err := r.client.PutDocument(ctx, p.ID, p); err != nil {
		return Page{}, fmt.Errorf("upsert page %s: %w", p.URL, err)
	}

	var persisted Page
	found, err := r.client.GetDocument(ctx, p.ID, &persisted)
	if err != nil {
		return Page{}, fmt.Errorf("read back page %s: %w", p.URL, err)
	}
	if !found {
		return Page{}, fmt.Errorf("page %s missing after upsert", p.URL)
	}
	return persisted, nil
}

// Get fetches one page by tenant and URL.
func (r *Repo) Get(ctx context.Context, tenantID, url string) (Page, bool, error) {
	var p Page
	found, err := r.client.GetDocument(ctx, ID(tenantID, url), &p)
	if err != nil {
		return Page{}, false, fmt.Errorf("get page %s: %w", url, err)
	}
	return p, found, nil
}

// Delete removes one page by tenant and URL.
func (r *Repo) Delete(ctx context.Context, tenantID, url string) error {
	if err := r.client.DeleteDocument(ctx, ID(tenantID, url)); err != nil {
		return fmt.Errorf("delete page %s: %w", url, err)
	}
	return nil
}

// DeleteBatch removes the listed URLs for one tenant in a single
// delete-by-ids call and returns how many documents were actually removed.
func (r *Repo) DeleteBatch(ctx context.Context, tenantID string, urls []string) (int, error) {
	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		ids = append(ids, ID(tenantID, u))
	}
	result, err := r.client.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("batch delete for %s: %w", tenantID, err)
	}
	return result.Deleted, nil
}

// DeleteAllForTenant clears a tenant's entire page set via one server-side
// delete.
func (r *Repo) DeleteAllForTenant(ctx context.Context, tenantID string) (int, error) {
	result, err := r.client.DeleteByQuery(ctx, map[string]any{
		"term": map[string]any{"finder": tenantID},
	})
	if err != nil {
		return 0, fmt.Errorf("clear tenant %s: %w", tenantID, err)
	}
	if len(result.Failures) > 0 {
		r.logger.Warn("tenant clear reported failures",
			zap.String("tenant", tenantID),
			zap.Int("failures", len(result.Failures)),
		)
	}
	return result.Deleted, nil
}
