// Package metrics exposes process-level Prometheus metrics for the engine:
// run counts and durations, per-run degradation counters and HTTP request
// instrumentation. It uses its own registry so tests can build isolated
// instances.
package metrics
