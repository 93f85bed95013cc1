package outlier

import (
	"github.com/fleetstats/fleetstats/engine/internal/netstats"
)

// Class is the outlier classification of one node average.
type Class string

const (
	ClassStatisticalLow  Class = "statistical-low"
	ClassBelowCentral    Class = "below-central"
	ClassNormal          Class = "normal"
	ClassStatisticalHigh Class = "statistical-high"
	ClassUnknown         Class = "unknown"
)

// Fixed bounds applied before the two-sigma band is consulted.
const (
	// DefaultHardFloor flags near-zero availability as low even when the
	// clamped two-sigma low bound sits at 0.
	DefaultHardFloor = 1.0

	// DefaultHighPerformance marks averages at or above it as normal no matter
	// how tight the network band is.
	DefaultHighPerformance = 99.0
)

// Classifier applies the decision order with configurable fixed bounds.
type Classifier struct {
	HardFloor       float64
	HighPerformance float64
}

// Default is the Classifier with package default bounds.
var Default = Classifier{HardFloor: DefaultHardFloor, HighPerformance: DefaultHighPerformance}

// Classify maps avg against st; the first matching rule wins:
//
//	avg ≤ HardFloor        → statistical-low
//	avg ≤ TwoSigmaLow      → statistical-low
//	avg ≥ HighPerformance  → normal
//	avg > TwoSigmaHigh     → statistical-high
//	avg < Central          → below-central
//	otherwise              → normal
func (c Classifier) Classify(avg float64, st netstats.Stats) Class {
	switch {
	case avg <= c.HardFloor:
		return ClassStatisticalLow
	case avg <= st.TwoSigmaLow:
		return ClassStatisticalLow
	case avg >= c.HighPerformance:
		return ClassNormal
	case avg > st.TwoSigmaHigh:
		return ClassStatisticalHigh
	case avg < st.Central:
		return ClassBelowCentral
	default:
		return ClassNormal
	}
}

// ClassifyOptional classifies when both the average and the statistics are
// available, and returns ClassUnknown otherwise. It never guesses.
func (c Classifier) ClassifyOptional(avg float64, avgOK bool, st netstats.Stats, stOK bool) Class {
	if !avgOK || !stOK {
		return ClassUnknown
	}
	return c.Classify(avg, st)
}

// Classify applies the Default classifier.
func Classify(avg float64, st netstats.Stats) Class {
	return Default.Classify(avg, st)
}
