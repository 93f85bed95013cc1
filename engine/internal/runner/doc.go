// Package runner drives the compute phase: load inputs, build the run-scoped
// snapshot, publish it to the store and fan it out to sinks. A failing sink
// is logged and counted; it never fails the run.
package runner
