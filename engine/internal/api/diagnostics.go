package api

import (
	"fmt"

	"github.com/fleetstats/fleetstats/engine/internal/statcache"
)

// DiagnosticHint is one human-readable note about a run's degradations.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Value  int    `json:"value"`
}

// computeHints derives hints from run diagnostics, most severe first.
func computeHints(d statcache.Diagnostics, series int) []DiagnosticHint {
	var hints []DiagnosticHint

	if series > 0 && d.InsufficientNetwork == series {
		hints = append(hints, DiagnosticHint{
			Key:   "no_network_statistics",
			Level: "critical",
			Title: "No network statistics",
			Detail: "None of the configured period and role series had enough node averages " +
				"above the inclusion threshold. Every classification in this run is unknown. " +
				"Check that the history file covers the configured periods.",
			Value: d.InsufficientNetwork,
		})
	} else if d.InsufficientNetwork > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "insufficient_network",
			Level: "warning",
			Title: fmt.Sprintf("%d series unavailable", d.InsufficientNetwork),
			Detail: fmt.Sprintf("%d of %d series had too few node averages for statistics. "+
				"Nodes in those series are classified as unknown.", d.InsufficientNetwork, series),
			Value: d.InsufficientNetwork,
		})
	}

	if d.Nodes > 0 && d.MissingHistory > 0 {
		level := "info"
		if d.MissingHistory*2 > d.Nodes {
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "missing_history",
			Level: level,
			Title: fmt.Sprintf("%d nodes without history", d.MissingHistory),
			Detail: fmt.Sprintf("%d of %d nodes in the snapshot have no availability history. "+
				"Their averages are reported as missing, not as zero.", d.MissingHistory, d.Nodes),
			Value: d.MissingHistory,
		})
	}

	if d.Inconsistencies > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "inconsistency",
			Level: "warning",
			Title: "Mean below p25",
			Detail: "At least one series has a mean below its 25th percentile, which points to " +
				"a heavily skewed distribution. The median is used as the central value.",
			Value: d.Inconsistencies,
		})
	}

	if d.NetworkTotalUnavailable > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "network_total_unavailable",
			Level: "info",
			Title: "Category totals unknown",
			Detail: fmt.Sprintf("%d share categories have no network total. Shares in those "+
				"categories can only come from authoritative fractions.", d.NetworkTotalUnavailable),
			Value: d.NetworkTotalUnavailable,
		})
	}

	if d.InvalidSamples > 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "invalid_samples",
			Level: "info",
			Title: fmt.Sprintf("%d invalid samples", d.InvalidSamples),
			Detail: "Non-numeric, null or out-of-range readings were discarded. They are " +
				"excluded from averages rather than counted as zero.",
			Value: d.InvalidSamples,
		})
	}

	if d.InsufficientSamples > 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "insufficient_samples",
			Level:  "info",
			Title:  fmt.Sprintf("%d short histories", d.InsufficientSamples),
			Detail: "Some node, period and role combinations had too few valid samples to average.",
			Value:  d.InsufficientSamples,
		})
	}
	return hints
}
