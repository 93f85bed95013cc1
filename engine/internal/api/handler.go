package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fleetstats/fleetstats/engine/internal/alerts"
	"github.com/fleetstats/fleetstats/engine/internal/share"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
	"github.com/fleetstats/fleetstats/engine/internal/uptime"
	"github.com/fleetstats/fleetstats/pkg/types"
)

// AlertLister exposes active alerts. *alerts.Engine implements it.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store  *statcache.Store
	alerts AlertLister
	router *mux.Router
}

// New creates a Handler over st and registers all routes. al may be nil.
func New(st *statcache.Store, al AlertLister) *Handler {
	h := &Handler{store: st, alerts: al, router: mux.NewRouter()}

	r := h.router.PathPrefix("/api/v1").Subrouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/runs", h.runs).Methods(http.MethodGet)
	r.HandleFunc("/summary", h.summary).Methods(http.MethodGet)
	r.HandleFunc("/periods/{period}/stats", h.periodStats).Methods(http.MethodGet)
	r.HandleFunc("/nodes/{id}/availability", h.nodeAvailability).Methods(http.MethodGet)
	r.HandleFunc("/shares/{kind}/{id}", h.capacityShare).Methods(http.MethodGet)
	r.HandleFunc("/alerts", h.listAlerts).Methods(http.MethodGet)

	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return h
}

// Router exposes the underlying router so callers can mount more routes.
func (h *Handler) Router() *mux.Router { return h.router }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{State: "pending", Hints: []DiagnosticHint{}}
	if h.alerts != nil {
		resp.AlertCount = len(h.alerts.Active())
	}

	snap := h.store.Current()
	if snap == nil {
		jsonResp(w, http.StatusOK, resp)
		return
	}

	d := snap.Diagnostics()
	at := snap.ComputedAt()
	resp.RunID = snap.RunID()
	resp.ComputedAt = &at
	resp.NodeCount = d.Nodes
	resp.Diagnostics = &d
	resp.State = "ok"
	if hints := computeHints(d, len(snap.Periods())*len(snap.Roles())); len(hints) > 0 {
		resp.Hints = hints
		for _, hint := range hints {
			if hint.Level != "info" {
				resp.State = "degraded"
				break
			}
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// runs returns GET /api/v1/runs.
func (h *Handler) runs(w http.ResponseWriter, _ *http.Request) {
	cur := h.store.Current()
	entries := h.store.List()
	out := make([]RunResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunResponse{
			RunID:       e.Snapshot.RunID(),
			ComputedAt:  e.Snapshot.ComputedAt(),
			PublishedAt: e.PublishedAt.UTC(),
			Current:     e.Snapshot == cur,
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// summary returns GET /api/v1/summary.
func (h *Handler) summary(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, snap.Summary())
}

// periodStats returns GET /api/v1/periods/{period}/stats?role=.
func (h *Handler) periodStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}
	period := mux.Vars(r)["period"]
	role := roleParam(r)

	if !contains(snap.Periods(), period) {
		jsonErr(w, http.StatusNotFound, "unknown period")
		return
	}
	if !contains(snap.Roles(), role) {
		jsonErr(w, http.StatusNotFound, "unknown role")
		return
	}
	st, ok := snap.NetworkStatistics(period, role)
	if !ok {
		jsonErr(w, http.StatusNotFound, "insufficient data")
		return
	}
	jsonResp(w, http.StatusOK, StatsResponse{RunID: snap.RunID(), Period: period, Role: role, Stats: st})
}

// nodeAvailability returns GET /api/v1/nodes/{id}/availability?role=.
func (h *Handler) nodeAvailability(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	role := roleParam(r)

	resp := NodeAvailabilityResponse{RunID: snap.RunID(), NodeID: id}
	known := snap.HasNode(id)
	for _, period := range snap.Periods() {
		avg := snap.NodeAverage(id, period, role)
		pa := PeriodAvailability{
			Period:   period,
			Role:     role,
			Status:   avg.Status,
			Samples:  avg.Samples,
			Included: avg.Included,
			Class:    snap.ClassifyAverage(avg),
		}
		if v, ok := avg.Value(); ok {
			pa.Percent = &v
		}
		if avg.Status != uptime.StatusMissing {
			known = true
		}
		resp.Periods = append(resp.Periods, pa)
	}
	if !known {
		jsonErr(w, http.StatusNotFound, "node not found")
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

// capacityShare returns GET /api/v1/shares/{kind}/{id}?category=.
func (h *Handler) capacityShare(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.current(w)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	kind, err := share.ParseKind(vars["kind"])
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	cat, err := share.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	sub := share.Subject{Kind: kind, ID: vars["id"]}
	if len(snap.Members(sub)) == 0 {
		jsonErr(w, http.StatusNotFound, string(kind)+" not found")
		return
	}

	cs := snap.CapacityShare(sub, cat)
	resp := ShareResponse{
		RunID:        snap.RunID(),
		Kind:         kind,
		ID:           sub.ID,
		Category:     cat,
		Provenance:   cs.Provenance,
		Members:      cs.Members,
		Contributing: cs.Contributing,
	}
	if f, ok := cs.Value(); ok {
		pct := f * 100
		resp.Available = true
		resp.Fraction = &f
		resp.Percent = &pct
	}
	jsonResp(w, http.StatusOK, resp)
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// --- helpers ----------------------------------------------------------------

// current writes 503 and returns false when no run has been published.
func (h *Handler) current(w http.ResponseWriter) (*statcache.Snapshot, bool) {
	snap := h.store.Current()
	if snap == nil {
		jsonErr(w, http.StatusServiceUnavailable, "no run published yet")
		return nil, false
	}
	return snap, true
}

func roleParam(r *http.Request) string {
	if role := r.URL.Query().Get("role"); role != "" {
		return role
	}
	return types.RoleOverall
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
