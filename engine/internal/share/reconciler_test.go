package share

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetstats/fleetstats/pkg/types"
)

func frac(v float64) *float64 { return &v }

func node(id string, weight int64, active bool, roles ...string) types.NodeSnapshot {
	return types.NodeSnapshot{ID: id, AbsoluteWeight: weight, Active: active, Roles: roles}
}

// --- Totals ---

func TestComputeTotals(t *testing.T) {
	nodes := []types.NodeSnapshot{
		node("g", 100, true, types.RoleGuard),
		node("e", 200, true, types.RoleExit),
		node("ge", 400, true, types.RoleGuard, types.RoleExit),
		node("m", 800, true, types.RoleFast),
		node("inactive", 1600, false, types.RoleGuard),
		node("zero", 0, true),
	}
	got := ComputeTotals(nodes)

	assert.Equal(t, int64(1500), got[CategoryAll])
	assert.Equal(t, int64(500), got[CategoryGuard])
	assert.Equal(t, int64(600), got[CategoryExit])
	assert.Equal(t, int64(800), got[CategoryMiddle])
}

func TestTotals_Known(t *testing.T) {
	tt := Totals{CategoryAll: 10, CategoryExit: 0}
	_, ok := tt.Known(CategoryAll)
	assert.True(t, ok)
	_, ok = tt.Known(CategoryExit)
	assert.False(t, ok)
	_, ok = tt.Known(CategoryGuard)
	assert.False(t, ok)
}

// --- Node level ---

func TestNodeShare_AuthoritativeVerbatim(t *testing.T) {
	n := node("a", 987654, true)
	n.ShareFraction = frac(0.01)
	r := NewReconciler([]types.NodeSnapshot{n}, Totals{CategoryAll: 1_000_000})

	got := r.NodeShare("a", CategoryAll)
	assert.Equal(t, ProvenanceAuthoritative, got.Provenance)
	assert.Equal(t, 0.01, got.Fraction)
}

func TestNodeShare_DerivedWhenFractionAbsent(t *testing.T) {
	r := NewReconciler([]types.NodeSnapshot{node("a", 2500, false)}, Totals{CategoryAll: 1_000_000})

	got := r.NodeShare("a", CategoryAll)
	assert.Equal(t, ProvenanceDerived, got.Provenance)
	assert.InDelta(t, 0.0025, got.Fraction, 1e-15)
}

func TestNodeShare_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		node   types.NodeSnapshot
		totals Totals
		id     string
		cat    Category
	}{
		{"unknown node", node("a", 10, true), Totals{CategoryAll: 100}, "b", CategoryAll},
		{"zero weight", node("a", 0, true), Totals{CategoryAll: 100}, "a", CategoryAll},
		{"zero total", node("a", 10, false), Totals{CategoryAll: 0}, "a", CategoryAll},
		{"missing total", node("a", 10, false), Totals{}, "a", CategoryAll},
		{"not eligible", node("a", 10, true), Totals{CategoryGuard: 100}, "a", CategoryGuard},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReconciler([]types.NodeSnapshot{tc.node}, tc.totals)
			got := r.NodeShare(tc.id, tc.cat)
			assert.Equal(t, ProvenanceUnavailable, got.Provenance)
			_, ok := got.Value()
			assert.False(t, ok, "unavailable must never read as 0")
		})
	}
}

func TestNodeShare_InvalidAuthoritativeIgnored(t *testing.T) {
	n := node("a", 500, true)
	n.ShareFraction = frac(1.5)
	r := NewReconciler([]types.NodeSnapshot{n}, Totals{CategoryAll: 1000})

	got := r.NodeShare("a", CategoryAll)
	assert.Equal(t, ProvenanceDerived, got.Provenance)
	assert.InDelta(t, 0.5, got.Fraction, 1e-15)
}

func TestNodeShare_RoleCategoryIgnoresAuthoritative(t *testing.T) {
	n := node("g", 250, true, types.RoleGuard)
	n.ShareFraction = frac(0.9)
	r := NewReconciler([]types.NodeSnapshot{n}, Totals{CategoryAll: 10_000, CategoryGuard: 1000})

	got := r.NodeShare("g", CategoryGuard)
	assert.Equal(t, ProvenanceDerived, got.Provenance)
	assert.InDelta(t, 0.25, got.Fraction, 1e-15)
}

// --- Operator / group level ---

func TestGroupShare_InactiveOperator(t *testing.T) {
	a := node("a", 1000, false)
	b := node("b", 2000, false)
	a.Operator, b.Operator = "ops@example.org", "ops@example.org"
	r := NewReconciler([]types.NodeSnapshot{a, b}, Totals{CategoryAll: 1_000_000})

	got := r.Share(Subject{Kind: KindOperator, ID: "ops@example.org"}, CategoryAll)
	assert.Equal(t, ProvenanceDerived, got.Provenance)
	assert.InDelta(t, 0.003, got.Fraction, 1e-15)
	assert.Equal(t, 2, got.Members)
	assert.Equal(t, 2, got.Contributing)
}

func TestGroupShare_Conservation(t *testing.T) {
	const total = 7_000_000
	weights := []int64{1000, 2500, 12345, 678, 90_000, 4, 31_000}

	var sum int64
	for _, w := range weights {
		sum += w
	}
	want := float64(sum) / total

	// The reconciled fraction must not depend on which members lacked an
	// authoritative fraction.
	for missing := 0; missing <= len(weights); missing++ {
		t.Run(fmt.Sprintf("missing=%d", missing), func(t *testing.T) {
			nodes := make([]types.NodeSnapshot, len(weights))
			for i, w := range weights {
				nodes[i] = node(fmt.Sprintf("n%d", i), w, i >= missing)
				nodes[i].Country = "de"
				if i >= missing {
					nodes[i].ShareFraction = frac(float64(w) / total)
				}
			}
			r := NewReconciler(nodes, Totals{CategoryAll: total})

			got := r.Share(Subject{Kind: KindCountry, ID: "de"}, CategoryAll)
			f, ok := got.Value()
			require.True(t, ok)
			assert.InDelta(t, want, f, 1e-12)
		})
	}
}

func TestGroupShare_FallsBackToAuthoritative(t *testing.T) {
	a := node("a", 0, true)
	a.ShareFraction = frac(0.02)
	b := node("b", 0, true)
	b.ShareFraction = frac(0.03)
	a.AS, b.AS = "AS1", "AS1"

	t.Run("no weights", func(t *testing.T) {
		r := NewReconciler([]types.NodeSnapshot{a, b}, Totals{CategoryAll: 1000})
		got := r.Share(Subject{Kind: KindAS, ID: "AS1"}, CategoryAll)
		assert.Equal(t, ProvenanceAuthoritative, got.Provenance)
		assert.InDelta(t, 0.05, got.Fraction, 1e-15)
	})

	t.Run("total unknown", func(t *testing.T) {
		c := node("c", 500, false)
		c.AS = "AS1"
		r := NewReconciler([]types.NodeSnapshot{a, b, c}, Totals{})
		got := r.Share(Subject{Kind: KindAS, ID: "AS1"}, CategoryAll)
		assert.Equal(t, ProvenanceAuthoritative, got.Provenance)
		assert.InDelta(t, 0.05, got.Fraction, 1e-15)
		assert.Equal(t, 3, got.Members)
		assert.Equal(t, 2, got.Contributing)
	})

	t.Run("mixed", func(t *testing.T) {
		c := node("c", 500, false)
		c.AS = "AS1"
		r := NewReconciler([]types.NodeSnapshot{a, b, c}, Totals{CategoryAll: 1000})
		got := r.Share(Subject{Kind: KindAS, ID: "AS1"}, CategoryAll)
		assert.Equal(t, ProvenanceDerived, got.Provenance)
		assert.InDelta(t, 0.55, got.Fraction, 1e-12)
	})
}

func TestGroupShare_UnavailableNotZero(t *testing.T) {
	a := node("a", 1000, false)
	a.Operator = "x"
	r := NewReconciler([]types.NodeSnapshot{a}, Totals{CategoryAll: 0})

	got := r.Share(Subject{Kind: KindOperator, ID: "x"}, CategoryAll)
	assert.Equal(t, ProvenanceUnavailable, got.Provenance)
	assert.Equal(t, 1, got.Members)

	got = r.Share(Subject{Kind: KindOperator, ID: "nobody"}, CategoryAll)
	assert.Equal(t, ProvenanceUnavailable, got.Provenance)
	assert.Equal(t, 0, got.Members)
}

func TestGroupShare_RoleCategoryMembers(t *testing.T) {
	g := node("g", 300, true, types.RoleGuard)
	m := node("m", 700, true)
	g.Operator, m.Operator = "op", "op"
	r := NewReconciler([]types.NodeSnapshot{g, m}, nil)

	got := r.Share(Subject{Kind: KindOperator, ID: "op"}, CategoryGuard)
	assert.Equal(t, 1, got.Members)
	assert.InDelta(t, 1.0, got.Fraction, 1e-15)

	got = r.Share(Subject{Kind: KindOperator, ID: "op"}, CategoryAll)
	assert.InDelta(t, 1.0, got.Fraction, 1e-15)
	assert.Equal(t, 2, got.Members)
}

func TestNewReconciler_FirstDuplicateWins(t *testing.T) {
	a1 := node("a", 100, true)
	a1.Operator = "first"
	a2 := node("a", 900, true)
	a2.Operator = "second"
	r := NewReconciler([]types.NodeSnapshot{a1, a2}, Totals{CategoryAll: 1000})

	assert.Equal(t, []string{"a"}, r.Members(Subject{Kind: KindOperator, ID: "first"}))
	assert.Empty(t, r.Members(Subject{Kind: KindOperator, ID: "second"}))
	assert.InDelta(t, 0.1, r.NodeShare("a", CategoryAll).Fraction, 1e-15)
}

func TestReconciler_TotalsCopy(t *testing.T) {
	r := NewReconciler(nil, Totals{CategoryAll: 5})
	got := r.Totals()
	got[CategoryAll] = 99
	assert.Equal(t, int64(5), r.Totals()[CategoryAll])
}

// --- Parsing ---

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("")
	require.NoError(t, err)
	assert.Equal(t, CategoryAll, c)

	c, err = ParseCategory("exit")
	require.NoError(t, err)
	assert.Equal(t, CategoryExit, c)

	_, err = ParseCategory("bridge")
	assert.Error(t, err)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("operator")
	require.NoError(t, err)
	assert.Equal(t, KindOperator, k)

	_, err = ParseKind("planet")
	assert.Error(t, err)
}

func TestCapacityShare_Percent(t *testing.T) {
	p, ok := CapacityShare{Fraction: 0.003, Provenance: ProvenanceDerived}.Percent()
	require.True(t, ok)
	assert.InDelta(t, 0.3, p, 1e-12)
}
