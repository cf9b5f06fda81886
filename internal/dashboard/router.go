// Package dashboard selects which top-level dashboard variant a permission
// set qualifies for.
package dashboard

// Dashboard identifies a top-level dashboard variant.
type Dashboard string

const (
	// District is the administrative dashboard.
	District Dashboard = "district"
	// Leader is the staff-operational dashboard.
	Leader Dashboard = "leader"
	// Parent is the default dashboard for everyone else.
	Parent Dashboard = "parent"
)

// adminTokens grant the district dashboard.
var adminTokens = []string{
	"admin.roles",
	"admin.users",
	"admin.district",
}

// staffTokens grant the leader dashboard.
var staffTokens = []string{
	"participants.manage",
	"attendance.record",
	"activities.manage",
	"medications.distribute",
	"permissionSlips.manage",
	"finance.manage",
}

// Route returns the dashboard for a permission set.
//
// Priority order is the contract: any administrative token wins district
// regardless of what else is present, then any staff token wins leader,
// and everything else - including an empty or unrecognized set - falls
// through to parent, the fail-safe choice.
func Route(tokens []string) Dashboard {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	for _, t := range adminTokens {
		if _, ok := set[t]; ok {
			return District
		}
	}
	for _, t := range staffTokens {
		if _, ok := set[t]; ok {
			return Leader
		}
	}
	return Parent
}
