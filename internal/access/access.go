// Package access holds roles, capabilities and the single capability check
// used at the API boundary.
package access

// Role is the role string carried in an access token.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// Capability is something a role is allowed to do.
type Capability string

const (
	CapReview            Capability = "review"
	CapListAll           Capability = "list-all"
	CapManageCompetition Capability = "manage-competitions"
)

var grants = map[Role]map[Capability]bool{
	RoleAdmin: {
		CapReview:            true,
		CapListAll:           true,
		CapManageCompetition: true,
	},
	RoleInstructor: {
		CapReview:            true,
		CapListAll:           true,
		CapManageCompetition: true,
	},
}

// Can reports whether role holds capability.
func Can(role Role, capability Capability) bool {
	return grants[role][capability]
}

// ParseRole normalizes a role string; unknown roles come back as "".
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleInstructor, RoleStudent:
		return Role(s)
	}
	return ""
}

// Principal is an authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

// Can reports whether a non-nil principal holds capability.
func (p *Principal) Can(capability Capability) bool {
	return p != nil && Can(p.Role, capability)
}

// Owns reports whether p may act on a resource created by ownerID: admins act
// on everything, everyone else only on their own resources.
func (p *Principal) Owns(ownerID string) bool {
	if p == nil {
		return false
	}
	return p.Role == RoleAdmin || (p.ID != "" && p.ID == ownerID)
}
