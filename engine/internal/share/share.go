package share

import (
	"fmt"
	"math"

	"github.com/fleetstats/fleetstats/pkg/types"
)

// Category selects which network total a share is measured against.
type Category string

const (
	CategoryAll    Category = "all"
	CategoryGuard  Category = "guard"
	CategoryExit   Category = "exit"
	CategoryMiddle Category = "middle"
)

// Categories lists every supported category in display order.
var Categories = []Category{CategoryAll, CategoryGuard, CategoryExit, CategoryMiddle}

// ParseCategory converts s into a Category. The empty string selects CategoryAll.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case "":
		return CategoryAll, nil
	case CategoryAll, CategoryGuard, CategoryExit, CategoryMiddle:
		return Category(s), nil
	default:
		return "", fmt.Errorf("share: unknown category %q", s)
	}
}

// Eligible reports whether n counts toward category c.
func (c Category) Eligible(n types.NodeSnapshot) bool {
	switch c {
	case CategoryAll:
		return true
	case CategoryGuard:
		return n.HasRole(types.RoleGuard)
	case CategoryExit:
		return n.HasRole(types.RoleExit)
	case CategoryMiddle:
		return !n.HasRole(types.RoleGuard) && !n.HasRole(types.RoleExit)
	default:
		return false
	}
}

// Provenance records where a CapacityShare fraction came from.
type Provenance string

const (
	ProvenanceAuthoritative Provenance = "authoritative"
	ProvenanceDerived       Provenance = "derived"
	ProvenanceUnavailable   Provenance = "unavailable"
)

// CapacityShare is a reconciled share of network capacity.
type CapacityShare struct {
	// Fraction is in [0, 1]. Only meaningful when Provenance is not
	// ProvenanceUnavailable; use Value to read it.
	Fraction   float64    `json:"fraction"`
	Provenance Provenance `json:"provenance"`

	// Members is the number of nodes in the subject eligible for the category;
	// Contributing is how many of them produced a contribution.
	Members      int `json:"members"`
	Contributing int `json:"contributing"`
}

// Value returns the fraction and true when the share is available.
func (s CapacityShare) Value() (float64, bool) {
	if s.Provenance == ProvenanceUnavailable {
		return 0, false
	}
	return s.Fraction, true
}

// Percent returns the share as a percentage and true when available.
func (s CapacityShare) Percent() (float64, bool) {
	f, ok := s.Value()
	return f * 100, ok
}

func unavailable(members int) CapacityShare {
	return CapacityShare{Provenance: ProvenanceUnavailable, Members: members}
}

// Totals holds the network total absolute weight per category.
type Totals map[Category]int64

// ComputeTotals sums AbsoluteWeight over active nodes for every category.
func ComputeTotals(nodes []types.NodeSnapshot) Totals {
	t := make(Totals, len(Categories))
	for _, c := range Categories {
		t[c] = 0
	}
	for _, n := range nodes {
		if !n.Active || n.AbsoluteWeight <= 0 {
			continue
		}
		for _, c := range Categories {
			if c.Eligible(n) {
				t[c] += n.AbsoluteWeight
			}
		}
	}
	return t
}

// Known returns the total for c and true when it is positive.
func (t Totals) Known(c Category) (int64, bool) {
	v, ok := t[c]
	return v, ok && v > 0
}

// validFraction returns the authoritative fraction when present and sane.
func validFraction(f *float64) (float64, bool) {
	if f == nil || math.IsNaN(*f) || *f < 0 || *f > 1 {
		return 0, false
	}
	return *f, true
}
