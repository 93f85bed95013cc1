// Package statcache owns the compute phase and the run-scoped result.
//
// Build runs the uptime processor, the network statistics calculator and the
// share reconciler exactly once over a fully materialized input set and
// returns an immutable *Snapshot. Every consumer (API handlers, alert rules,
// exporters, report builders) reads from that value; none of them recomputes
// statistics. Snapshot accessors return copies, so the published value can be
// shared across goroutines without locks.
//
// Store holds the currently published Snapshot plus recently superseded ones,
// evicting superseded runs after a TTL. RedisPublisher mirrors the run summary
// into Redis for report builders running in other processes.
package statcache
