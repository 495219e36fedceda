package auth

// IsValid checks if the role is one of the predefined platform roles
func IsValidRole(r Role) bool {
	switch r {
	case RoleStudent, RoleMentor, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a Role, defaulting to student
// when the input is empty.
func ParseRole(roleStr string) (Role, bool) {
	if roleStr == "" {
		return RoleStudent, true
	}
	role := Role(roleStr)
	return role, IsValidRole(role)
}

// AllRoles returns the predefined roles
func AllRoles() []Role {
	return []Role{RoleStudent, RoleMentor, RoleAdmin}
}

// RoleSet is a set of permitted roles used by the context role helper
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from the given roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether the role is in the set
func (s RoleSet) Contains(r Role) bool {
	_, ok := s[r]
	return ok
}
