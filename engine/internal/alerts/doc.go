// Package alerts evaluates threshold rules against every published run and
// delivers webhook notifications when a rule fires or resolves.
//
// A rule is "field op value" scoped to a period and role series. Statistic
// fields (mean, p50, sample_count, ...) read the network statistics of the
// series; a series without statistics leaves the rule's state untouched
// except for "available == false". Run fields (missing_history,
// invalid_samples, ...) read the run diagnostics. Class fields
// (statistical_low_nodes, ...) count nodes by outlier class in the series.
//
// Webhooks go to Slack, Teams or generic HTTP targets.
package alerts
