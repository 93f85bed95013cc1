// Package sample validates raw availability readings.
//
// Upstream history arrays hold values scaled ×10 (0 = never up, 999 = always
// up) interleaved with nulls and occasional garbage. Filter accepts only finite
// numbers in [MinValue, MaxValue] and reports everything else as invalid; it
// never coerces a bad value to zero.
package sample
