package uptime

import (
	"github.com/fleetstats/fleetstats/engine/internal/sample"
	"github.com/fleetstats/fleetstats/pkg/types"
)

// Defaults for Options fields left at their zero value.
const (
	DefaultMinSamples         = 30
	DefaultInclusionThreshold = 70.0
)

// Status describes whether a NodeAverage carries a usable value.
type Status string

const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient"
	StatusMissing      Status = "missing"
)

// NodeAverage is one node's averaged availability for a period and role.
type NodeAverage struct {
	NodeID string
	Period string
	Role   string

	// Percent is the mean availability in [0, 100]. Only meaningful when
	// Status is StatusOK; use Value to read it.
	Percent float64

	// Samples is the number of valid readings the average was built from.
	Samples int

	Status Status

	// Included reports whether Percent was above the inclusion threshold and
	// therefore counted toward network statistics.
	Included bool
}

// Value returns the averaged percentage and true when the average is available.
func (a NodeAverage) Value() (float64, bool) {
	if a.Status != StatusOK {
		return 0, false
	}
	return a.Percent, true
}

// Missing returns the NodeAverage reported for a triple with no history.
func Missing(nodeID, period, role string) NodeAverage {
	return NodeAverage{NodeID: nodeID, Period: period, Role: role, Status: StatusMissing}
}

// Key identifies one node × period × role triple.
type Key struct {
	NodeID string
	Period string
	Role   string
}

// SeriesKey identifies one network-wide value list.
type SeriesKey struct {
	Period string
	Role   string
}

// Options controls a Processor. Zero-valued fields take package defaults.
type Options struct {
	MinSamples         int
	InclusionThreshold float64

	// ThresholdSet marks InclusionThreshold as chosen by the caller, so a zero
	// threshold includes every positive average instead of taking the default.
	ThresholdSet bool

	// Periods and Roles restrict which history entries are read. RoleOverall
	// is always processed; listing it in Roles has no extra effect.
	Periods []string
	Roles   []string

	// RoleAnalysis enables per-(period, role) network accumulation.
	RoleAnalysis bool
}

// Counts are the diagnostic tallies gathered during one pass.
type Counts struct {
	ValidSamples   int
	InvalidSamples int
	// Insufficient counts triples with fewer than MinSamples valid readings.
	Insufficient int
	// Averaged counts triples that produced a value.
	Averaged int
	// Excluded counts overall averages at or below the inclusion threshold.
	Excluded int
}

// Result is the output of one pass.
type Result struct {
	Averages map[Key]NodeAverage
	Network  map[SeriesKey][]float64
	Counts   Counts
}

// Processor computes node averages and network accumulators.
type Processor struct {
	opts Options
}

// NewProcessor returns a Processor with defaults applied to opts.
func NewProcessor(opts Options) *Processor {
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultMinSamples
	}
	if !opts.ThresholdSet && opts.InclusionThreshold <= 0 {
		opts.InclusionThreshold = DefaultInclusionThreshold
	}
	opts.ThresholdSet = true
	if len(opts.Periods) == 0 {
		opts.Periods = types.DefaultPeriods
	}
	if opts.Roles == nil {
		opts.Roles = types.DefaultRoles
	}
	opts.Roles = withoutOverall(opts.Roles)
	return &Processor{opts: opts}
}

// Options returns the effective options, defaults included.
func (p *Processor) Options() Options {
	return p.opts
}

// Process makes a single pass over histories. Nodes without an entry for a
// period or role simply produce no NodeAverage for that triple.
func (p *Processor) Process(histories []types.AvailabilityHistory) *Result {
	res := &Result{
		Averages: make(map[Key]NodeAverage),
		Network:  make(map[SeriesKey][]float64),
	}

	var counter sample.Counter
	buf := make([]float64, 0, 512)

	roles := make([]string, 0, len(p.opts.Roles)+1)
	roles = append(roles, types.RoleOverall)
	roles = append(roles, p.opts.Roles...)

	for _, h := range histories {
		if h.ID == "" || len(h.Samples) == 0 {
			continue
		}
		for _, period := range p.opts.Periods {
			byRole, ok := h.Samples[period]
			if !ok {
				continue
			}
			for _, role := range roles {
				raw, ok := byRole[role]
				if !ok {
					continue
				}

				buf = counter.Filter(buf[:0], raw)
				avg := NodeAverage{
					NodeID:  h.ID,
					Period:  period,
					Role:    role,
					Samples: len(buf),
				}
				if len(buf) < p.opts.MinSamples {
					avg.Status = StatusInsufficient
					res.Counts.Insufficient++
					res.Averages[Key{h.ID, period, role}] = avg
					continue
				}

				avg.Status = StatusOK
				avg.Percent = mean(buf) / sample.Scale
				avg.Included = avg.Percent > p.opts.InclusionThreshold
				res.Counts.Averaged++
				res.Averages[Key{h.ID, period, role}] = avg

				if !avg.Included {
					if role == types.RoleOverall {
						res.Counts.Excluded++
					}
					continue
				}
				if role == types.RoleOverall || p.opts.RoleAnalysis {
					sk := SeriesKey{Period: period, Role: role}
					res.Network[sk] = append(res.Network[sk], avg.Percent)
				}
			}
		}
	}

	res.Counts.ValidSamples = counter.Valid
	res.Counts.InvalidSamples = counter.Invalid
	return res
}

// withoutOverall returns roles minus RoleOverall and repeats, preserving order.
func withoutOverall(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r == types.RoleOverall {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
