// Package uptime turns raw availability histories into per-node averages and
// the network-wide value lists the statistics calculator consumes.
//
// Processor.Process makes exactly one pass over every node × period × role.
// Each triple yields a NodeAverage; "overall" averages above the inclusion
// threshold are appended to the per-period network list in the same pass, and
// role averages feed per-(period, role) lists when role analysis is enabled.
// Node averages, network statistics and outlier classes must never be derived
// in separate passes over the histories.
//
// Thresholds:
//   - DefaultMinSamples (30): fewer valid samples marks a triple insufficient.
//   - DefaultInclusionThreshold (70%): only averages strictly above it count
//     toward network statistics. Lower cut-offs (1%, 10%, 50%) still let the
//     long low tail of the production distribution drag the mean under the
//     25th percentile; 70% is the smallest value that removes that while
//     keeping at least 85% of operationally relevant nodes.
package uptime
