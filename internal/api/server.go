// Package api exposes the HTTP interface of the page finder service.
package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/loxal/page-finder-service/internal/config"
	"github.com/loxal/page-finder-service/internal/crawl"
	"github.com/loxal/page-finder-service/internal/index"
	"github.com/loxal/page-finder-service/internal/page"
	"github.com/loxal/page-finder-service/internal/site"
)

// SiteRegistry is the tenant store surface the handlers use.
type SiteRegistry interface {
	Create(ctx context.Context, email string, configs []site.CrawlConfig) (site.Site, error)
	Get(ctx context.Context, id string) (site.Site, error)
	Update(ctx context.Context, id, secret, email string, configs []site.CrawlConfig) (site.Site, error)
	Status(ctx context.Context, id string) (site.CrawlStatus, error)
}

// CrawlRunner triggers crawl work on demand.
type CrawlRunner interface {
	RunTenant(ctx context.Context, tenant site.Site, force bool) crawl.TenantReport
	RunDue(ctx context.Context, force bool) (crawl.Report, error)
}

// ProgressReader reports live page counts for running crawls.
type ProgressReader interface {
	Progress(tenantID string) int64
}

// PageStore is the per-page surface the handlers use.
type PageStore interface {
	Get(ctx context.Context, tenantID, url string) (page.Page, bool, error)
	Delete(ctx context.Context, tenantID, url string) error
	DeleteBatch(ctx context.Context, tenantID string, urls []string) (int, error)
}

// Server wires HTTP handlers to the tenant registry, the crawl runner, and
// the page index.
type Server struct {
	router   chi.Router
	sites    SiteRegistry
	runner   CrawlRunner
	progress ProgressReader
	pages    PageStore
	searcher *index.Client
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sites SiteRegistry,
	runner CrawlRunner,
	progress ProgressReader,
	pages PageStore,
	searcher *index.Client,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		sites:    sites,
		runner:   runner,
		progress: progress,
		pages:    pages,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(metricsMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sites", func(r chi.Router) {
			r.Post("/", s.createSite)
			r.Route("/{site_id}", func(r chi.Router) {
				r.Put("/", s.updateSite)
				r.Post("/crawl", s.triggerCrawl)
				r.Get("/status", s.crawlStatus)
				r.Get("/progress", s.crawlProgress)
				r.Get("/search", s.search)
				r.Get("/suggest", s.suggest)
				r.Delete("/pages", s.deletePages)
			})
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminSecretMiddleware(cfg.Auth.AdminSecret))
			r.Post("/recrawl", s.recrawlAll)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.searcher.Refresh(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "index unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// authorizeSite loads the tenant and checks the caller's secret, taken from
// the X-Site-Secret header. The admin secret is accepted everywhere.
func (s *Server) authorizeSite(w http.ResponseWriter, r *http.Request) (site.Site, bool) {
	id := chi.URLParam(r, "site_id")
	tenant, err := s.sites.Get(r.Context(), id)
	if errors.Is(err, site.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "site not found")
		return site.Site{}, false
	}
	if err != nil {
		s.logger.Error("site lookup failed", zap.String("site", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "site lookup failed")
		return site.Site{}, false
	}
	secret := r.Header.Get("X-Site-Secret")
	if !tenant.Authorize(secret) && !secretsEqual(secret, s.cfg.Auth.AdminSecret) {
		s.writeError(w, http.StatusForbidden, "unauthorized")
		return site.Site{}, false
	}
	return tenant, true
}

func secretsEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					fmt.Fprint(w, `{"error":"internal server error"}`)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func adminSecretMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secretsEqual(r.Header.Get("X-Admin-Secret"), expected) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"error":"unauthorized"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}
