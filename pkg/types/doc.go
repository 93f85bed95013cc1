// Package types defines the input records consumed by the statistics engine.
// These are the canonical in-memory representations of the two upstream
// datasets (node snapshots and availability histories), independent of the
// JSON layout the ingestion layer reads them from.
package types
