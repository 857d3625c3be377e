// Package crawl implements the crawl-and-index pipeline: URL admission,
// per-tenant crawl sessions over the frontier engine, sitemap seed
// resolution, obsolete-page cleanup, and the multi-site scheduler.
package crawl

import "errors"

// ErrFrontierStorage signals that the frontier engine's local storage could
// not start. A session purges the run's storage directory and retries once.
var ErrFrontierStorage = errors.New("crawl: frontier storage failure")

// ErrForceRestart signals a second frontier storage failure in the same
// session. The frontier engine is left in an unknown state and the crawl
// subsystem must be restarted by the caller.
var ErrForceRestart = errors.New("crawl: frontier storage failed after purge, force restart required")
