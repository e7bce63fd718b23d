package rbac

import (
	"sort"
)

// RoleSet is the set of active roles held by a caller
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from a list of roles
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether the set contains role
func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// HasAny reports whether the set intersects allowed
func (s RoleSet) HasAny(allowed ...Role) bool {
	for _, r := range allowed {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// Slice returns the roles sorted by name
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasPermission is true iff any role in roles grants action on resource.
// There is no hierarchy between roles. An empty set, unknown roles and
// undeclared actions all evaluate to false.
func HasPermission(roles RoleSet, resource Resource, action Action) bool {
	if !IsDeclared(resource, action) {
		return false
	}
	for role := range roles {
		if RoleGrants(role, resource, action) {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the sorted union of all grants in roles
func EffectivePermissions(roles RoleSet) []Permission {
	seen := make(map[Permission]struct{})
	for role := range roles {
		for _, p := range Grants(role) {
			seen[p] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
