package sample

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		want   float64
		wantOK bool
	}{
		{"zero", 0.0, 0, true},
		{"max", 999.0, 999, true},
		{"mid float", 512.5, 512.5, true},
		{"int", 998, 998, true},
		{"int64", int64(10), 10, true},
		{"uint8", uint8(7), 7, true},
		{"json number", json.Number("950"), 950, true},
		{"nil", nil, 0, false},
		{"negative", -1.0, 0, false},
		{"above max", 1000.0, 0, false},
		{"string digits", "500", 0, false},
		{"bool", true, 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"bad json number", json.Number("abc"), 0, false},
		{"slice", []int{1}, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Filter(tc.raw)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCounter_Filter(t *testing.T) {
	var c Counter
	raw := []any{999.0, nil, "x", 500, json.Number("1000"), 0.0}

	got := c.Filter(nil, raw)

	assert.Equal(t, []float64{999, 500, 0}, got)
	assert.Equal(t, 3, c.Valid)
	assert.Equal(t, 3, c.Invalid)
}

func TestCounter_FilterAppends(t *testing.T) {
	var c Counter
	dst := []float64{1}
	dst = c.Filter(dst, []any{2.0})
	assert.Equal(t, []float64{1, 2}, dst)
}
