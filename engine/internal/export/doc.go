// Package export writes a published run as a Prometheus textfile, suitable for
// the node_exporter textfile collector or any scraper that reads the text
// exposition format from disk. Files are replaced atomically.
package export
