package statcache

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fleetstats/fleetstats/engine/internal/netstats"
	"github.com/fleetstats/fleetstats/engine/internal/outlier"
	"github.com/fleetstats/fleetstats/engine/internal/share"
	"github.com/fleetstats/fleetstats/engine/internal/uptime"
	"github.com/fleetstats/fleetstats/pkg/types"
)

// Options configures Build.
type Options struct {
	Uptime            uptime.Options
	MinNetworkSamples int
	Classifier        outlier.Classifier

	// Totals overrides the category network totals. Nil computes them from
	// the node snapshots.
	Totals share.Totals
}

// Diagnostics counts every non-fatal degradation seen during a run.
type Diagnostics struct {
	Nodes     int `json:"nodes"`
	Histories int `json:"histories"`

	MissingHistory          int `json:"missing_history"`
	InsufficientSamples     int `json:"insufficient_samples"`
	ValidSamples            int `json:"valid_samples"`
	InvalidSamples          int `json:"invalid_samples"`
	ExcludedBelowThreshold  int `json:"excluded_below_threshold"`
	Inconsistencies         int `json:"inconsistencies"`
	InsufficientNetwork     int `json:"insufficient_network"`
	NetworkTotalUnavailable int `json:"network_total_unavailable"`
}

// Snapshot is the immutable result of one run.
type Snapshot struct {
	runID      string
	computedAt time.Time
	periods    []string
	roles      []string
	threshold  float64

	stats      map[uptime.SeriesKey]netstats.Stats
	averages   map[uptime.Key]uptime.NodeAverage
	nodeIDs    []string
	reconciler *share.Reconciler
	classifier outlier.Classifier
	diag       Diagnostics
}

// Build computes a Snapshot from one materialized input set. It makes a single
// pass over the histories and computes each network series once.
func Build(nodes []types.NodeSnapshot, histories []types.AvailabilityHistory, opts Options, now time.Time) *Snapshot {
	proc := uptime.NewProcessor(opts.Uptime)
	uopts := proc.Options()
	res := proc.Process(histories)

	classifier := opts.Classifier
	if classifier == (outlier.Classifier{}) {
		classifier = outlier.Default
	}

	snap := &Snapshot{
		runID:      uuid.NewString(),
		computedAt: now.UTC(),
		periods:    append([]string(nil), uopts.Periods...),
		threshold:  uopts.InclusionThreshold,
		stats:      make(map[uptime.SeriesKey]netstats.Stats),
		averages:   res.Averages,
		reconciler: share.NewReconciler(nodes, opts.Totals),
		classifier: classifier,
	}
	snap.roles = append(snap.roles, types.RoleOverall)
	if uopts.RoleAnalysis {
		snap.roles = append(snap.roles, uopts.Roles...)
	}

	d := &snap.diag
	d.Nodes = len(nodes)
	d.Histories = len(histories)
	d.InsufficientSamples = res.Counts.Insufficient
	d.ValidSamples = res.Counts.ValidSamples
	d.InvalidSamples = res.Counts.InvalidSamples
	d.ExcludedBelowThreshold = res.Counts.Excluded

	calc := netstats.NewCalculator(opts.MinNetworkSamples)
	for _, period := range snap.periods {
		for _, role := range snap.roles {
			key := uptime.SeriesKey{Period: period, Role: role}
			st, ok := calc.Calculate(period+"/"+role, res.Network[key])
			if !ok {
				d.InsufficientNetwork++
				continue
			}
			if st.Inconsistent {
				d.Inconsistencies++
			}
			snap.stats[key] = st
		}
	}

	withHistory := make(map[string]struct{}, len(histories))
	for _, h := range histories {
		if len(h.Samples) > 0 {
			withHistory[h.ID] = struct{}{}
		}
	}
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		snap.nodeIDs = append(snap.nodeIDs, n.ID)
		if _, ok := withHistory[n.ID]; !ok {
			d.MissingHistory++
		}
	}
	sort.Strings(snap.nodeIDs)

	totals := snap.reconciler.Totals()
	for _, c := range share.Categories {
		if _, ok := totals.Known(c); !ok {
			d.NetworkTotalUnavailable++
		}
	}
	return snap
}

// RunID returns the unique identifier of the run.
func (s *Snapshot) RunID() string { return s.runID }

// ComputedAt returns when the run was computed (UTC).
func (s *Snapshot) ComputedAt() time.Time { return s.computedAt }

// Periods returns the periods statistics were computed for.
func (s *Snapshot) Periods() []string { return append([]string(nil), s.periods...) }

// Roles returns the roles network statistics were computed for, overall first.
func (s *Snapshot) Roles() []string { return append([]string(nil), s.roles...) }

// InclusionThreshold returns the threshold used for network accumulation.
func (s *Snapshot) InclusionThreshold() float64 { return s.threshold }

// Diagnostics returns the run's degradation counts.
func (s *Snapshot) Diagnostics() Diagnostics { return s.diag }

// NodeIDs returns the sorted IDs of every node in the snapshot input.
func (s *Snapshot) NodeIDs() []string { return append([]string(nil), s.nodeIDs...) }

// HasNode reports whether id was part of the node snapshot input.
func (s *Snapshot) HasNode(id string) bool {
	i := sort.SearchStrings(s.nodeIDs, id)
	return i < len(s.nodeIDs) && s.nodeIDs[i] == id
}

// NetworkStatistics returns the statistics for period and role. An empty role
// selects the overall series. It returns false when the series had too few
// values or was not computed.
func (s *Snapshot) NetworkStatistics(period, role string) (netstats.Stats, bool) {
	if role == "" {
		role = types.RoleOverall
	}
	st, ok := s.stats[uptime.SeriesKey{Period: period, Role: role}]
	return st, ok
}

// NodeAverage returns the node's average for period and role. A triple with no
// history yields a NodeAverage with StatusMissing.
func (s *Snapshot) NodeAverage(nodeID, period, role string) uptime.NodeAverage {
	if role == "" {
		role = types.RoleOverall
	}
	if avg, ok := s.averages[uptime.Key{NodeID: nodeID, Period: period, Role: role}]; ok {
		return avg
	}
	return uptime.Missing(nodeID, period, role)
}

// ClassifyAverage classifies avg against the statistics of its own series.
func (s *Snapshot) ClassifyAverage(avg uptime.NodeAverage) outlier.Class {
	v, ok := avg.Value()
	st, stOK := s.NetworkStatistics(avg.Period, avg.Role)
	return s.classifier.ClassifyOptional(v, ok, st, stOK)
}

// Classify classifies the node's average for period and role.
func (s *Snapshot) Classify(nodeID, period, role string) outlier.Class {
	return s.ClassifyAverage(s.NodeAverage(nodeID, period, role))
}

// CapacityShare returns the reconciled capacity share of sub in category c.
func (s *Snapshot) CapacityShare(sub share.Subject, c share.Category) share.CapacityShare {
	return s.reconciler.Share(sub, c)
}

// Members returns the node IDs making up sub.
func (s *Snapshot) Members(sub share.Subject) []string { return s.reconciler.Members(sub) }

// Totals returns the category network totals used for share derivation.
func (s *Snapshot) Totals() share.Totals { return s.reconciler.Totals() }

// SeriesSummary is the published view of one network series.
type SeriesSummary struct {
	Period    string          `json:"period"`
	Role      string          `json:"role"`
	Available bool            `json:"available"`
	Stats     *netstats.Stats `json:"stats,omitempty"`
}

// Summary is the JSON-friendly overview of a run.
type Summary struct {
	RunID              string           `json:"run_id"`
	ComputedAt         time.Time        `json:"computed_at"`
	InclusionThreshold float64          `json:"inclusion_threshold"`
	Diagnostics        Diagnostics      `json:"diagnostics"`
	Totals             map[string]int64 `json:"totals"`
	Series             []SeriesSummary  `json:"series"`
}

// Summary builds the run overview, ordered by period then role.
func (s *Snapshot) Summary() Summary {
	out := Summary{
		RunID:              s.runID,
		ComputedAt:         s.computedAt,
		InclusionThreshold: s.threshold,
		Diagnostics:        s.diag,
		Totals:             make(map[string]int64),
	}
	for c, v := range s.reconciler.Totals() {
		out.Totals[string(c)] = v
	}
	for _, p := range s.periods {
		for _, r := range s.roles {
			ss := SeriesSummary{Period: p, Role: r}
			if st, ok := s.NetworkStatistics(p, r); ok {
				stCopy := st
				ss.Available = true
				ss.Stats = &stCopy
			}
			out.Series = append(out.Series, ss)
		}
	}
	return out
}

// String implements fmt.Stringer for log lines.
func (s *Snapshot) String() string {
	return fmt.Sprintf("run %s (%d nodes, %d series)", s.runID, len(s.nodeIDs), len(s.stats))
}
