// Package ingest loads the two input datasets of a run: the node snapshot file
// and the availability history file. Both are JSON and are read concurrently.
// Sample values are decoded as json.Number so the sample filter sees the raw
// reading, not a value already coerced by the decoder.
package ingest
