// Package netstats turns a list of per-node availability averages into
// network-wide statistics: mean, population standard deviation, the two-sigma
// band and an interpolated percentile ladder.
//
// The published central value is always the median. The node-average
// distribution is heavily skewed (most nodes near 100%, a long low tail), and
// the arithmetic mean can fall below the 25th percentile; Calculate logs that
// case as an inconsistency but never lets it reach consumers.
package netstats
