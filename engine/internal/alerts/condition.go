package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetstats/fleetstats/engine/internal/netstats"
	"github.com/fleetstats/fleetstats/engine/internal/outlier"
	"github.com/fleetstats/fleetstats/engine/internal/statcache"
)

type fieldKind int

const (
	kindStat fieldKind = iota
	kindAvailable
	kindRun
	kindClass
)

var statFields = map[string]func(netstats.Stats) float64{
	"mean":           func(s netstats.Stats) float64 { return s.Mean },
	"stddev":         func(s netstats.Stats) float64 { return s.StdDev },
	"central":        func(s netstats.Stats) float64 { return s.Central },
	"two_sigma_low":  func(s netstats.Stats) float64 { return s.TwoSigmaLow },
	"two_sigma_high": func(s netstats.Stats) float64 { return s.TwoSigmaHigh },
	"p25":            func(s netstats.Stats) float64 { return s.Percentiles.P25 },
	"p50":            func(s netstats.Stats) float64 { return s.Percentiles.P50 },
	"p75":            func(s netstats.Stats) float64 { return s.Percentiles.P75 },
	"p90":            func(s netstats.Stats) float64 { return s.Percentiles.P90 },
	"p95":            func(s netstats.Stats) float64 { return s.Percentiles.P95 },
	"p99":            func(s netstats.Stats) float64 { return s.Percentiles.P99 },
	"sample_count":   func(s netstats.Stats) float64 { return float64(s.SampleCount) },
}

var runFields = map[string]func(statcache.Diagnostics) float64{
	"missing_history":           func(d statcache.Diagnostics) float64 { return float64(d.MissingHistory) },
	"insufficient_samples":      func(d statcache.Diagnostics) float64 { return float64(d.InsufficientSamples) },
	"invalid_samples":           func(d statcache.Diagnostics) float64 { return float64(d.InvalidSamples) },
	"inconsistencies":           func(d statcache.Diagnostics) float64 { return float64(d.Inconsistencies) },
	"insufficient_network":      func(d statcache.Diagnostics) float64 { return float64(d.InsufficientNetwork) },
	"network_total_unavailable": func(d statcache.Diagnostics) float64 { return float64(d.NetworkTotalUnavailable) },
	"excluded_below_threshold":  func(d statcache.Diagnostics) float64 { return float64(d.ExcludedBelowThreshold) },
}

var classFields = map[string]outlier.Class{
	"statistical_low_nodes":  outlier.ClassStatisticalLow,
	"below_central_nodes":    outlier.ClassBelowCentral,
	"statistical_high_nodes": outlier.ClassStatisticalHigh,
	"unknown_nodes":          outlier.ClassUnknown,
}

// Condition is a parsed "field op value" expression.
type Condition struct {
	Field     string
	Op        string
	Threshold float64

	kind    fieldKind
	wantOK  bool // for kindAvailable
	literal string
}

// ParseCondition parses expressions such as:
//
//	p50 < 95
//	sample_count < 500
//	two_sigma_low <= 80
//	available == false
//	missing_history > 100
//	statistical_low_nodes >= 50
func ParseCondition(s string) (Condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("alerts: condition %q: want \"field op value\"", s)
	}
	c := Condition{Field: parts[0], Op: parts[1], literal: s}

	if c.Field == "available" {
		if c.Op != "==" && c.Op != "!=" {
			return Condition{}, fmt.Errorf("alerts: condition %q: available supports == and != only", s)
		}
		b, err := strconv.ParseBool(parts[2])
		if err != nil {
			return Condition{}, fmt.Errorf("alerts: condition %q: %w", s, err)
		}
		c.kind = kindAvailable
		c.wantOK = b
		if c.Op == "!=" {
			c.wantOK = !b
			c.Op = "=="
		}
		return c, nil
	}

	switch c.Op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return Condition{}, fmt.Errorf("alerts: condition %q: unknown operator %q", s, c.Op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("alerts: condition %q: %w", s, err)
	}
	c.Threshold = v

	switch {
	case statFields[c.Field] != nil:
		c.kind = kindStat
	case runFields[c.Field] != nil:
		c.kind = kindRun
	case classFields[c.Field] != "":
		c.kind = kindClass
	default:
		return Condition{}, fmt.Errorf("alerts: condition %q: unknown field %q", s, c.Field)
	}
	return c, nil
}

// String returns the original expression.
func (c Condition) String() string { return c.literal }

// Eval evaluates c against the series (period, role) of snap. It returns
// ok=false when the value cannot be determined, in which case the caller
// must neither fire nor resolve.
func (c Condition) Eval(snap *statcache.Snapshot, period, role string) (fires bool, value float64, ok bool) {
	switch c.kind {
	case kindAvailable:
		_, avail := snap.NetworkStatistics(period, role)
		return avail == c.wantOK, boolValue(avail), true

	case kindStat:
		st, avail := snap.NetworkStatistics(period, role)
		if !avail {
			return false, 0, false
		}
		v := statFields[c.Field](st)
		return compareFloat(v, c.Op, c.Threshold), v, true

	case kindRun:
		v := runFields[c.Field](snap.Diagnostics())
		return compareFloat(v, c.Op, c.Threshold), v, true

	case kindClass:
		if _, avail := snap.NetworkStatistics(period, role); !avail && classFields[c.Field] != outlier.ClassUnknown {
			return false, 0, false
		}
		want := classFields[c.Field]
		n := 0
		for _, id := range snap.NodeIDs() {
			if snap.Classify(id, period, role) == want {
				n++
			}
		}
		v := float64(n)
		return compareFloat(v, c.Op, c.Threshold), v, true
	}
	return false, 0, false
}

// PerSeries reports whether c depends on the period/role series.
func (c Condition) PerSeries() bool { return c.kind != kindRun }

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
