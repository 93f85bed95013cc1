package share

import (
	"fmt"
	"math"

	"github.com/fleetstats/fleetstats/pkg/types"
)

// Kind is the type of subject a share is requested for.
type Kind string

const (
	KindNode     Kind = "node"
	KindOperator Kind = "operator"
	KindCountry  Kind = "country"
	KindAS       Kind = "as"
)

// ParseKind converts s into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNode, KindOperator, KindCountry, KindAS:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("share: unknown subject kind %q", s)
	}
}

// Subject names a node, an operator or a group.
type Subject struct {
	Kind Kind
	ID   string
}

// Reconciler answers share queries over one immutable node set. All methods
// are read-only and safe for concurrent use once NewReconciler returns.
type Reconciler struct {
	nodes  map[string]types.NodeSnapshot
	groups map[Subject][]string
	totals Totals
}

// NewReconciler indexes nodes by ID, operator, country and AS. When totals is
// nil the category totals are computed from nodes.
func NewReconciler(nodes []types.NodeSnapshot, totals Totals) *Reconciler {
	if totals == nil {
		totals = ComputeTotals(nodes)
	}
	r := &Reconciler{
		nodes:  make(map[string]types.NodeSnapshot, len(nodes)),
		groups: make(map[Subject][]string),
		totals: make(Totals, len(totals)),
	}
	for c, v := range totals {
		r.totals[c] = v
	}
	for _, n := range nodes {
		// First occurrence wins; ingest already drops duplicates.
		if _, dup := r.nodes[n.ID]; dup {
			continue
		}
		r.nodes[n.ID] = n
		r.index(KindOperator, n.Operator, n.ID)
		r.index(KindCountry, n.Country, n.ID)
		r.index(KindAS, n.AS, n.ID)
	}
	return r
}

func (r *Reconciler) index(kind Kind, key, id string) {
	if key == "" {
		return
	}
	s := Subject{Kind: kind, ID: key}
	r.groups[s] = append(r.groups[s], id)
}

// Totals returns a copy of the category totals.
func (r *Reconciler) Totals() Totals {
	out := make(Totals, len(r.totals))
	for c, v := range r.totals {
		out[c] = v
	}
	return out
}

// Members returns the node IDs belonging to a group subject.
func (r *Reconciler) Members(sub Subject) []string {
	if sub.Kind == KindNode {
		if _, ok := r.nodes[sub.ID]; ok {
			return []string{sub.ID}
		}
		return nil
	}
	ids := r.groups[sub]
	return append([]string(nil), ids...)
}

// Share returns the reconciled share for sub in category c.
func (r *Reconciler) Share(sub Subject, c Category) CapacityShare {
	if sub.Kind == KindNode {
		return r.NodeShare(sub.ID, c)
	}
	return r.GroupShare(r.groups[sub], c)
}

// NodeShare returns a single node's share. The authoritative fraction (which
// is measured against the whole network) is used verbatim for CategoryAll;
// otherwise the share is derived from the node's weight, or unavailable.
func (r *Reconciler) NodeShare(id string, c Category) CapacityShare {
	n, ok := r.nodes[id]
	if !ok || !c.Eligible(n) {
		return unavailable(0)
	}
	if c == CategoryAll {
		if f, ok := validFraction(n.ShareFraction); ok {
			return CapacityShare{Fraction: f, Provenance: ProvenanceAuthoritative, Members: 1, Contributing: 1}
		}
	}
	total, ok := r.totals.Known(c)
	if !ok || n.AbsoluteWeight <= 0 {
		return unavailable(1)
	}
	return CapacityShare{
		Fraction:     clamp01(float64(n.AbsoluteWeight) / float64(total)),
		Provenance:   ProvenanceDerived,
		Members:      1,
		Contributing: 1,
	}
}

// GroupShare reconciles the share of the nodes in ids. Weights of all
// derivable members are summed and divided once by the category total; a
// member whose weight cannot be used contributes its authoritative fraction
// instead (CategoryAll only). Members with neither are skipped, and a group
// with no contributions is unavailable rather than zero.
func (r *Reconciler) GroupShare(ids []string, c Category) CapacityShare {
	total, totalOK := r.totals.Known(c)

	var (
		weight        int64
		authoritative float64
		members       int
		derived       int
		fromAuth      int
	)
	for _, id := range ids {
		n, ok := r.nodes[id]
		if !ok || !c.Eligible(n) {
			continue
		}
		members++
		if totalOK && n.AbsoluteWeight > 0 {
			weight += n.AbsoluteWeight
			derived++
			continue
		}
		if c == CategoryAll {
			if f, ok := validFraction(n.ShareFraction); ok {
				authoritative += f
				fromAuth++
			}
		}
	}

	if derived+fromAuth == 0 {
		return unavailable(members)
	}

	out := CapacityShare{
		Provenance:   ProvenanceAuthoritative,
		Members:      members,
		Contributing: derived + fromAuth,
	}
	var fraction float64
	if derived > 0 {
		out.Provenance = ProvenanceDerived
		fraction = float64(weight) / float64(total)
	}
	out.Fraction = clamp01(fraction + authoritative)
	return out
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
