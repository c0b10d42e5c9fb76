package constants

// Role is a company membership role. Roles form a total order; a lower rank is
// a higher privilege.
type Role string

const (
	Admin   Role = "Admin"
	Manager Role = "Manager"
	HR      Role = "HR"
	Member  Role = "Member"
	Guest   Role = "Guest"
)

// ValidRoles lists every role from most to least privileged.
var ValidRoles = []Role{Admin, Manager, HR, Member, Guest}

var roleRank = map[Role]int{
	Admin:   1,
	Manager: 2,
	HR:      3,
	Member:  4,
	Guest:   5,
}

// IsValidRole returns true if role is one of the known roles.
func IsValidRole(role string) bool {
	_, ok := roleRank[Role(role)]
	return ok
}

// Rank returns the position of r in the hierarchy (1 = Admin) or 0 for unknown roles.
func (r Role) Rank() int {
	return roleRank[r]
}

// Outranks reports whether r is strictly more privileged than other.
// Unknown roles never outrank and are never outranked.
func (r Role) Outranks(other Role) bool {
	a, b := r.Rank(), other.Rank()
	if a == 0 || b == 0 {
		return false
	}
	return a < b
}

// CanAssign reports whether an actor holding actor may invite into or assign target.
// Admins may assign any role; everyone else only roles strictly below their own.
func CanAssign(actor, target Role) bool {
	if target.Rank() == 0 {
		return false
	}
	if actor == Admin {
		return true
	}
	return actor.Outranks(target)
}

// IsJunior reports whether r is one of the two lowest roles (Member, Guest).
func (r Role) IsJunior() bool {
	return r == Member || r == Guest
}
