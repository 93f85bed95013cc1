package netstats

import (
	"log/slog"
	"math"
	"sort"
)

// DefaultMinSamples is the smallest list for which percentiles are reported.
const DefaultMinSamples = 10

// Ranks are the percentile ranks computed for every ladder, in order.
var Ranks = [...]float64{25, 50, 75, 90, 95, 99}

// Percentiles is the interpolated percentile ladder.
type Percentiles struct {
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Slice returns the ladder ordered by rank, matching Ranks.
func (p Percentiles) Slice() []float64 {
	return []float64{p.P25, p.P50, p.P75, p.P90, p.P95, p.P99}
}

// Stats is the statistics summary for one period (and role).
// Stats is a plain value: callers receive copies and may adjust them freely.
type Stats struct {
	Mean         float64     `json:"mean"`
	StdDev       float64     `json:"stddev"`
	TwoSigmaLow  float64     `json:"two_sigma_low"`
	TwoSigmaHigh float64     `json:"two_sigma_high"`
	Percentiles  Percentiles `json:"percentiles"`
	SampleCount  int         `json:"sample_count"`

	// Central is the typical value shown to users: the median.
	Central float64 `json:"central"`

	// Inconsistent is set when the mean fell below the 25th percentile.
	Inconsistent bool `json:"inconsistent"`
}

// Calculator computes Stats from value lists.
type Calculator struct {
	minSamples int
}

// NewCalculator returns a Calculator requiring at least minSamples values.
// A non-positive minSamples selects DefaultMinSamples.
func NewCalculator(minSamples int) *Calculator {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Calculator{minSamples: minSamples}
}

// Calculate returns the statistics for values and true, or false when there
// are fewer than the minimum number of values. values is not modified.
//
// label is attached to the inconsistency warning so operators can tell which
// series triggered it.
func (c *Calculator) Calculate(label string, values []float64) (Stats, bool) {
	n := len(values)
	if n < c.minSamples {
		return Stats{}, false
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum, sumSq float64
	for _, v := range sorted {
		sum += v
		sumSq += v * v
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	stddev := math.Sqrt(math.Max(0, variance))

	st := Stats{
		Mean:         mean,
		StdDev:       stddev,
		TwoSigmaLow:  math.Max(0, mean-2*stddev),
		TwoSigmaHigh: mean + 2*stddev,
		SampleCount:  n,
		Percentiles: Percentiles{
			P25: Percentile(sorted, 25),
			P50: Percentile(sorted, 50),
			P75: Percentile(sorted, 75),
			P90: Percentile(sorted, 90),
			P95: Percentile(sorted, 95),
			P99: Percentile(sorted, 99),
		},
	}
	st.Central = st.Percentiles.P50

	if st.Mean < st.Percentiles.P25 {
		st.Inconsistent = true
		slog.Warn("netstats: mean below 25th percentile, publishing median as central",
			"series", label,
			"mean", st.Mean,
			"p25", st.Percentiles.P25,
			"p50", st.Percentiles.P50,
			"n", n,
		)
	}
	return st, true
}

// Percentile returns the p-th percentile of sorted using linear interpolation
// between the order statistics around rank k = (n-1)·p/100.
// sorted must be in ascending order and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	k := float64(n-1) * p / 100
	lo := math.Floor(k)
	hi := math.Ceil(k)
	if lo == hi {
		return sorted[int(k)]
	}
	a, b := sorted[int(lo)], sorted[int(hi)]
	v := a + (b-a)*(k-lo)
	// Rounding must not push the result outside its bracketing order
	// statistics, or the ladder could lose monotonicity.
	return math.Min(math.Max(v, a), b)
}
