// Package api implements the read-only HTTP API over the current run.
//
// New(store, alerts) returns an http.Handler that serves:
//
//	GET /api/v1/health                       run id, computed-at, diagnostics, hints
//	GET /api/v1/runs                         retained runs, newest first
//	GET /api/v1/summary                      summary of the current run
//	GET /api/v1/periods/{period}/stats       network statistics (?role=)
//	GET /api/v1/nodes/{id}/availability      per-period averages and classes (?role=)
//	GET /api/v1/shares/{kind}/{id}           capacity share (?category=)
//	GET /api/v1/alerts                       firing and recently resolved alerts
//
// All endpoints respond with JSON and return 405 for non-GET methods. Every
// handler reads exactly one snapshot, so a response never mixes two runs.
// Until the first run is published, data endpoints return 503.
package api
