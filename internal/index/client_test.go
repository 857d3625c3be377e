package index

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "pagefinder", "s3cret", 5*time.Second, zap.NewNop())
}

func TestClientSendsBasicAuth(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := c.PutDocument(context.Background(), "doc-1", map[string]string{"k": "v"})
	require.NoError(t, err)

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:s3cret"))
	require.Equal(t, want, gotAuth)
}

func TestPutDocumentRejectsUnexpectedResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"noop"}`))
	})
	err := c.PutDocument(context.Background(), "doc-1", map[string]string{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "noop")
}

func TestGetDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/pagefinder/_doc/doc-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"_id":"doc-1","found":true,"_source":{"title":"hello"}}`))
	})

	var out struct {
		Title string `json:"title"`
	}
	found, err := c.GetDocument(context.Background(), "doc-1", &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", out.Title)
}

func TestGetDocumentMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"found":false}`))
	})
	found, err := c.GetDocument(context.Background(), "nope", nil)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteByQueryParsesAccounting(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pagefinder/_delete_by_query", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"took":12,"total":3,"deleted":2,"failures":[{"id":"x"}]}`))
	})

	result, err := c.DeleteByQuery(context.Background(), map[string]any{
		"term": map[string]any{"finder": "tenant-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 2, result.Deleted)
	require.Len(t, result.Failures, 1)
	require.Contains(t, gotBody, "query")
}

func TestDeleteByIDsEmptyIsNoop(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	result, err := c.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, result.Deleted)
	require.False(t, called)
}

func TestSearchParsesHitsAndHighlights(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pagefinder/_search", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"hits": {
				"total": {"value": 1},
				"hits": [{
					"_id": "p1",
					"_score": 1.5,
					"_source": {"url": "https://example.org/a"},
					"highlight": {"body": ["<em>match</em>"]}
				}]
			}
		}`))
	})

	result, err := c.Search(context.Background(), map[string]any{"query": map[string]any{}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	require.Len(t, result.Hits, 1)
	require.Equal(t, "p1", result.Hits[0].ID)
	require.Equal(t, []string{"<em>match</em>"}, result.Hits[0].Highlight["body"])
}

func TestDoReportsEngineErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	})
	err := c.Refresh(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 500")
}
