package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/index"
)

// ErrUnauthorized is returned as a value when a presented secret does not
// match the tenant's credential. It never aborts batch work.
var ErrUnauthorized = errors.New("site: unauthorized")

// ErrNotFound is returned when a tenant does not exist.
var ErrNotFound = errors.New("site: not found")

// Store persists tenants and their crawl-status records in the document
// store, alongside the pages they own.
type Store struct {
	client *index.Client
	logger *zap.Logger
}

// NewStore constructs a Store.
func NewStore(client *index.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Create provisions a new tenant with a fresh id and secret.
func (s *Store) Create(ctx context.Context, email string, configs []CrawlConfig) (Site, error) {
	tenant := Site{
		ID:      uuid.NewString(),
		Type:    DocTypeSite,
		Secret:  uuid.NewString(),
		Email:   email,
		Configs: configs,
	}
	if err := s.client.PutDocument(ctx, siteDocID(tenant.ID), tenant); err != nil {
		return Site{}, fmt.Errorf("create site: %w", err)
	}
	return tenant, nil
}

// Get fetches one tenant by id.
func (s *Store) Get(ctx context.Context, id string) (Site, error) {
	var tenant Site
	found, err := s.client.GetDocument(ctx, siteDocID(id), &tenant)
	if err != nil {
		return Site{}, fmt.Errorf("get site %s: %w", id, err)
	}
	if !found {
		return Site{}, ErrNotFound
	}
	return tenant, nil
}

// Update replaces a tenant's profile after checking its secret. The id and
// secret themselves are preserved.
func (s *Store) Update(ctx context.Context, id, secret, email string, configs []CrawlConfig) (Site, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return Site{}, err
	}
	if !tenant.Authorize(secret) {
		return Site{}, ErrUnauthorized
	}
	tenant.Email = email
	tenant.Configs = configs
	if err := s.client.PutDocument(ctx, siteDocID(id), tenant); err != nil {
		return Site{}, fmt.Errorf("update site %s: %w", id, err)
	}
	return tenant, nil
}

// List fetches every tenant profile in the index. Records that fail to
// decode are logged and skipped so one corrupt profile cannot hide the rest.
func (s *Store) List(ctx context.Context) ([]Site, error) {
	query := map[string]any{
		"size":  10000,
		"query": map[string]any{"term": map[string]any{"type": DocTypeSite}},
	}
	result, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	tenants := make([]Site, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var tenant Site
		if err := json.Unmarshal(hit.Source, &tenant); err != nil {
			s.logger.Warn("skipping undecodable site record", zap.String("doc", hit.ID), zap.Error(err))
			continue
		}
		tenants = append(tenants, tenant)
	}
	return tenants, nil
}

// Status reads the tenant's crawl-status record. A tenant with no record yet
// reports a zero Crawled time, which always counts as due.
func (s *Store) Status(ctx context.Context, id string) (CrawlStatus, error) {
	var status CrawlStatus
	found, err := s.client.GetDocument(ctx, statusDocID(id), &status)
	if err != nil {
		return CrawlStatus{}, fmt.Errorf("get crawl status %s: %w", id, err)
	}
	if !found {
		return CrawlStatus{SiteID: id}, nil
	}
	return status, nil
}

// PutStatus writes the tenant's crawl-status record in one piece.
func (s *Store) PutStatus(ctx context.Context, status CrawlStatus) error {
	if err := s.client.PutDocument(ctx, statusDocID(status.SiteID), status); err != nil {
		return fmt.Errorf("put crawl status %s: %w", status.SiteID, err)
	}
	return nil
}

func siteDocID(id string) string   { return "site-" + id }
func statusDocID(id string) string { return "status-" + id }
