package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagefinder_pages_indexed_total",
		Help: "Pages successfully extracted and written to the index.",
	})

	pagesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagefinder_pages_skipped_total",
		Help: "Pages dropped after a failed fetch, extraction, or index write.",
	})

	crawlRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefinder_crawl_runs_total",
		Help: "Crawl sessions by terminal status.",
	}, []string{"status"})

	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagefinder_cleanup_deleted_total",
		Help: "Obsolete pages removed by retention cleanup.",
	})

	activeTenantTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagefinder_active_tenant_tasks",
		Help: "Tenant crawl tasks currently running in the scheduler pool.",
	})
)
