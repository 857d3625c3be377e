// Package index implements the HTTP document store client used for pages,
// tenant profiles, and crawl-status records.
package index

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Client talks to the document store over HTTP. Every request carries a basic
// auth credential derived from the shared admin secret and a JSON body.
type Client struct {
	baseURL   string
	indexName string
	authValue string
	http      *http.Client
	logger    *zap.Logger
}

// NewClient constructs a Client for one index.
func NewClient(baseURL, indexName, adminSecret string, timeout time.Duration, logger *zap.Logger) *Client {
	cred := base64.StdEncoding.EncodeToString([]byte("admin:" + adminSecret))
	return &Client{
		baseURL:   baseURL,
		indexName: indexName,
		authValue: "Basic " + cred,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// IndexName returns the index this client operates on.
func (c *Client) IndexName() string {
	return c.indexName
}

// PutDocument writes doc under id, replacing any previous version in full.
func (c *Client) PutDocument(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", id, err)
	}
	payload, _, err := c.do(ctx, http.MethodPut, c.docPath(id), body)
	if err != nil {
		return err
	}
	var resp putResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("parse put response for %s: %w", id, err)
	}
	if resp.Result != "created" && resp.Result != "updated" {
		return fmt.Errorf("unexpected put result %q for %s", resp.Result, id)
	}
	return nil
}

// GetDocument fetches the document stored under id into out. It reports
// whether the document exists.
func (c *Client) GetDocument(ctx context.Context, id string, out any) (bool, error) {
	payload, status, err := c.do(ctx, http.MethodGet, c.docPath(id), nil)
	if status == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var resp getResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return false, fmt.Errorf("parse get response for %s: %w", id, err)
	}
	if !resp.Found {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(resp.Source, out); err != nil {
			return false, fmt.Errorf("decode document %s: %w", id, err)
		}
	}
	return true, nil
}

// DeleteDocument removes a single document. Deleting a missing document is
// not an error.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, status, err := c.do(ctx, http.MethodDelete, c.docPath(id), nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}

// DeleteByQuery issues one server-side delete for every document matching
// query and returns the engine's accounting of the operation.
func (c *Client) DeleteByQuery(ctx context.Context, query map[string]any) (DeleteByQueryResult, error) {
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return DeleteByQueryResult{}, fmt.Errorf("marshal delete query: %w", err)
	}
	payload, _, err := c.do(ctx, http.MethodPost, c.indexPath("_delete_by_query"), body)
	if err != nil {
		return DeleteByQueryResult{}, err
	}
	var result DeleteByQueryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return DeleteByQueryResult{}, fmt.Errorf("parse delete-by-query response: %w", err)
	}
	return result, nil
}

// DeleteByIDs removes the listed documents via a single delete-by-query.
func (c *Client) DeleteByIDs(ctx context.Context, ids []string) (DeleteByQueryResult, error) {
	if len(ids) == 0 {
		return DeleteByQueryResult{}, nil
	}
	return c.DeleteByQuery(ctx, map[string]any{
		"ids": map[string]any{"values": ids},
	})
}

// Search runs a full-text query and returns parsed hits with highlights.
func (c *Client) Search(ctx context.Context, body map[string]any) (SearchResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return SearchResult{}, fmt.Errorf("marshal search body: %w", err)
	}
	raw, _, err := c.do(ctx, http.MethodPost, c.indexPath("_search"), payload)
	if err != nil {
		return SearchResult{}, err
	}
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return SearchResult{}, fmt.Errorf("parse search response: %w", err)
	}
	result := SearchResult{Total: resp.Hits.Total.Value}
	for _, h := range resp.Hits.Hits {
		result.Hits = append(result.Hits, Hit{
			ID:        h.ID,
			Score:     h.Score,
			Source:    h.Source,
			Highlight: h.Highlight,
		})
	}
	return result, nil
}

// Refresh makes recent writes visible to search.
func (c *Client) Refresh(ctx context.Context) error {
	_, _, err := c.do(ctx, http.MethodPost, c.indexPath("_refresh"), nil)
	return err
}

func (c *Client) docPath(id string) string {
	return fmt.Sprintf("%s/%s/_doc/%s", c.baseURL, c.indexName, url.PathEscape(id))
}

func (c *Client) indexPath(op string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.indexName, op)
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("new %s request: %w", method, err)
	}
	req.Header.Set("Authorization", c.authValue)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return payload, resp.StatusCode, fmt.Errorf(
			"%s %s: status %d: %s", method, target, resp.StatusCode, truncate(payload, 256))
	}
	return payload, resp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
