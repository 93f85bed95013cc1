package types

// Canonical look-back periods for availability history.
const (
	Period1Month  = "1_month"
	Period6Months = "6_months"
	Period1Year   = "1_year"
	Period5Years  = "5_years"
)

// Canonical role tags. RoleOverall is the pseudo-role holding a node's
// availability regardless of the roles it carried.
const (
	RoleOverall = "overall"
	RoleGuard   = "Guard"
	RoleExit    = "Exit"
	RoleFast    = "Fast"
	RoleRunning = "Running"
)

// DefaultPeriods is the ordered set of periods processed when none are configured.
var DefaultPeriods = []string{Period1Month, Period6Months, Period1Year, Period5Years}

// DefaultRoles is the ordered set of role tags processed when none are configured.
var DefaultRoles = []string{RoleGuard, RoleExit, RoleFast, RoleRunning}

// NodeSnapshot is one fleet member as seen at the start of a run.
type NodeSnapshot struct {
	// ID is the stable node identifier (fingerprint).
	ID string `json:"id"`

	// AbsoluteWeight is the node's routing capacity weight. Zero means the
	// weight is unknown or the node carries no capacity.
	AbsoluteWeight int64 `json:"absolute_weight"`

	// ShareFraction is the authoritative fraction of total network capacity,
	// as published upstream. Nil when upstream omitted it (typically for
	// inactive nodes).
	ShareFraction *float64 `json:"share_fraction,omitempty"`

	Active bool     `json:"active"`
	Roles  []string `json:"roles"`

	// Operator is the contact identity used to group nodes run by one party.
	Operator string `json:"operator,omitempty"`
	Country  string `json:"country,omitempty"`
	AS       string `json:"as,omitempty"`
}

// HasRole reports whether the node carries the given role tag.
func (n NodeSnapshot) HasRole(role string) bool {
	for _, r := range n.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AvailabilityHistory holds raw availability samples for one node, keyed by
// period and then by role (or RoleOverall). Sample values are left untyped:
// upstream data contains nulls and garbage that the sample filter rejects.
type AvailabilityHistory struct {
	ID      string                      `json:"id"`
	Samples map[string]map[string][]any `json:"samples"`
}
