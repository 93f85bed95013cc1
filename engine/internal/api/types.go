package api

import (
	"time"

	"github.com/fleetstats/fleetstats/engine/internal/netstats"
	"github.com/fleetstats/fleetstats/engine/internal/outlier"
	"github.com/fleetstats/fleetstats/engine/internal/share"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
	"github.com/fleetstats/fleetstats/engine/internal/uptime"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "pending" before the first run, then "ok" or "degraded".
	State       string                 `json:"state"`
	RunID       string                 `json:"run_id,omitempty"`
	ComputedAt  *time.Time             `json:"computed_at,omitempty"`
	NodeCount   int                    `json:"node_count"`
	AlertCount  int                    `json:"alert_count"`
	Diagnostics *statcache.Diagnostics `json:"diagnostics,omitempty"`
	Hints       []DiagnosticHint       `json:"hints"`
}

// RunResponse is one entry of GET /api/v1/runs.
type RunResponse struct {
	RunID       string    `json:"run_id"`
	ComputedAt  time.Time `json:"computed_at"`
	PublishedAt time.Time `json:"published_at"`
	Current     bool      `json:"current"`
}

// StatsResponse is the payload for GET /api/v1/periods/{period}/stats.
type StatsResponse struct {
	RunID  string         `json:"run_id"`
	Period string         `json:"period"`
	Role   string         `json:"role"`
	Stats  netstats.Stats `json:"stats"`
}

// PeriodAvailability is one period of a node availability response.
type PeriodAvailability struct {
	Period   string        `json:"period"`
	Role     string        `json:"role"`
	Status   uptime.Status `json:"status"`
	Percent  *float64      `json:"percent,omitempty"`
	Samples  int           `json:"samples"`
	Included bool          `json:"included"`
	Class    outlier.Class `json:"class"`
}

// NodeAvailabilityResponse is the payload for GET /api/v1/nodes/{id}/availability.
type NodeAvailabilityResponse struct {
	RunID   string               `json:"run_id"`
	NodeID  string               `json:"node_id"`
	Periods []PeriodAvailability `json:"periods"`
}

// ShareResponse is the payload for GET /api/v1/shares/{kind}/{id}.
type ShareResponse struct {
	RunID        string           `json:"run_id"`
	Kind         share.Kind       `json:"kind"`
	ID           string           `json:"id"`
	Category     share.Category   `json:"category"`
	Available    bool             `json:"available"`
	Fraction     *float64         `json:"fraction,omitempty"`
	Percent      *float64         `json:"percent,omitempty"`
	Provenance   share.Provenance `json:"provenance"`
	Members      int              `json:"members"`
	Contributing int              `json:"contributing"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
