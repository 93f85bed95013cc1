package sample

import (
	"encoding/json"
	"math"
)

// Bounds of a valid raw reading.
const (
	MinValue = 0
	MaxValue = 999

	// Scale converts a raw reading to a percentage.
	Scale = 10.0
)

// Filter returns the numeric value of raw and true when raw is a finite number
// in [MinValue, MaxValue]. Nil, strings, booleans, NaN, ±Inf and out-of-range
// numbers return (0, false).
func Filter(raw any) (float64, bool) {
	v, ok := toFloat(raw)
	if !ok {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < MinValue || v > MaxValue {
		return 0, false
	}
	return v, true
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Counter tallies filter outcomes. The zero value is ready to use.
// Counter is not safe for concurrent use; the uptime processor owns one per run.
type Counter struct {
	Valid   int
	Invalid int
}

// Filter applies Filter to every value in raw, appending valid readings to dst
// and counting both outcomes.
func (c *Counter) Filter(dst []float64, raw []any) []float64 {
	for _, r := range raw {
		v, ok := Filter(r)
		if !ok {
			c.Invalid++
			continue
		}
		c.Valid++
		dst = append(dst, v)
	}
	return dst
}
