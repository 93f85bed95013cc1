// Package outlier classifies a node's average availability against the
// network statistics for the same period.
package outlier
