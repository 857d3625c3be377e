package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/site"
)

type siteRequest struct {
	Email   string             `json:"email"`
	Configs []site.CrawlConfig `json:"configs"`
}

type searchResponse struct {
	Total   int            `json:"total"`
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID         string   `json:"id"`
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateSiteRequest(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenant, err := s.sites.Create(r.Context(), req.Email, req.Configs)
	if err != nil {
		s.logger.Error("site create failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "site create failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, tenant)
}

func (s *Server) updateSite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "site_id")
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateSiteRequest(req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tenant, err := s.sites.Update(r.Context(), id, r.Header.Get("X-Site-Secret"), req.Email, req.Configs)
	switch {
	case errors.Is(err, site.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "site not found")
	case errors.Is(err, site.ErrUnauthorized):
		s.writeError(w, http.StatusForbidden, "unauthorized")
	case err != nil:
		s.logger.Error("site update failed", zap.String("site", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "site update failed")
	default:
		s.writeJSON(w, http.StatusOK, tenant)
	}
}

// triggerCrawl starts the tenant's crawl in the background and answers
// immediately. Progress is available on the progress endpoint while the
// crawl runs.
func (s *Server) triggerCrawl(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	go func() {
		report := s.runner.RunTenant(context.Background(), tenant, force)
		if report.Err != nil {
			s.logger.Error("triggered crawl failed",
				zap.String("site", tenant.ID),
				zap.Error(report.Err),
			)
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"site_id": tenant.ID, "status": "crawling"})
}

func (s *Server) crawlStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}
	status, err := s.sites.Status(r.Context(), tenant.ID)
	if err != nil {
		s.logger.Error("status read failed", zap.String("site", tenant.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "status read failed")
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) crawlProgress(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"site_id": tenant.ID,
		"pages":   s.progress.Progress(tenant.ID),
	})
}

// search runs a full-text query over the tenant's pages.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"finder": tenant.ID}},
				},
				"must": []any{
					map[string]any{"match": map[string]any{"body": q}},
				},
			},
		},
		"highlight": map[string]any{
			"fields": map[string]any{"body": map[string]any{}},
		},
	}
	result, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("search failed", zap.String("site", tenant.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := searchResponse{Total: result.Total, Results: make([]searchResult, 0, len(result.Hits))}
	for _, hit := range result.Hits {
		var doc struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			s.logger.Warn("undecodable search hit", zap.String("doc", hit.ID), zap.Error(err))
			continue
		}
		resp.Results = append(resp.Results, searchResult{
			ID:         hit.ID,
			URL:        doc.URL,
			Title:      doc.Title,
			Score:      hit.Score,
			Highlights: hit.Highlight["body"],
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// suggest returns title completions for a query prefix, for search-as-you-
// type boxes.
func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	query := map[string]any{
		"size": 8,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"finder": tenant.ID}},
				},
				"must": []any{
					map[string]any{"match_phrase": map[string]any{"title": q}},
				},
			},
		},
	}
	result, err := s.searcher.Search(r.Context(), query)
	if err != nil {
		s.logger.Error("suggest failed", zap.String("site", tenant.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "suggest failed")
		return
	}
	suggestions := make([]searchResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var doc struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		}
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			continue
		}
		suggestions = append(suggestions, searchResult{ID: hit.ID, URL: doc.URL, Title: doc.Title, Score: hit.Score})
	}
	s.writeJSON(w, http.StatusOK, searchResponse{Total: result.Total, Results: suggestions})
}

// deletePages removes pages from the tenant's index: one page named by the
// url query parameter, or several named in the request body.
func (s *Server) deletePages(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.authorizeSite(w, r)
	if !ok {
		return
	}
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		s.deletePageBatch(w, r, tenant)
		return
	}
	_, found, err := s.pages.Get(r.Context(), tenant.ID, pageURL)
	if err != nil {
		s.logger.Error("page lookup failed", zap.String("site", tenant.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "page lookup failed")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if err := s.pages.Delete(r.Context(), tenant.ID, pageURL); err != nil {
		s.logger.Error("page delete failed", zap.String("site", tenant.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "page delete failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": pageURL, "status": "deleted"})
}

func (s *Server) deletePageBatch(w http.ResponseWriter, r *http.Request, tenant site.Site) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "missing url parameter or urls body")
		return
	}
	deleted, err := s.pages.DeleteBatch(r.Context(), tenant.ID, req.URLs)
	if err != nil {
		s.logger.Error("batch page delete failed", zap.String("site", tenant.ID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "batch page delete failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// recrawlAll kicks off a full scheduler pass in the background.
func (s *Server) recrawlAll(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	go func() {
		started := time.Now()
		report, err := s.runner.RunDue(context.Background(), force)
		if err != nil {
			s.logger.Error("admin recrawl failed", zap.Error(err))
			return
		}
		s.logger.Info("admin recrawl finished",
			zap.Int("tenants", len(report.Tenants)),
			zap.Bool("fatal_restart", report.FatalRestart),
			zap.Duration("took", time.Since(started)),
		)
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recrawl started"})
}

func validateSiteRequest(req siteRequest) error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return errors.New("valid email required")
	}
	if len(req.Configs) == 0 {
		return errors.New("at least one crawl config required")
	}
	for _, cfg := range req.Configs {
		if cfg.URL == "" {
			return errors.New("crawl config url required")
		}
	}
	return nil
}
