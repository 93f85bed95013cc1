// Package share reconciles per-node, per-operator and per-group capacity
// shares from absolute weights and the optional authoritative fraction
// published upstream.
//
// Upstream omits the authoritative fraction for inactive nodes, so summing
// node fractions silently drops them. The Reconciler never does that: group
// shares are built from summed absolute weights divided once by the category
// network total, falling back to a node's authoritative fraction only when its
// weight cannot be used. Category totals are computed once per run.
package share
