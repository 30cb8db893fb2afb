package auth

import "strings"

// Role is a named set of permission tokens. A token ending in ".*" grants
// every permission under that prefix and "*" grants everything.
type Role struct {
	Name        string
	Permissions []string
}

// HasPermission checks if the role grants perm
func (r *Role) HasPermission(perm string) bool {
	for _, p := range r.Permissions {
		if matchPermission(p, perm) {
			return true
		}
	}
	return false
}

func matchPermission(granted, perm string) bool {
	if granted == "*" || granted == perm {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, ".*"); ok {
		return strings.HasPrefix(perm, prefix+".")
	}
	return false
}

// RBAC maps role names to roles
type RBAC struct {
	roles map[string]*Role
}

// NewRBAC creates a role table
func NewRBAC(roles ...*Role) *RBAC {
	r := &RBAC{roles: make(map[string]*Role, len(roles))}
	for _, role := range roles {
		r.roles[role.Name] = role
	}
	return r
}

// FromMap builds a role table from role name to permission tokens, the shape
// used in configuration files.
func FromMap(m map[string][]string) *RBAC {
	roles := make([]*Role, 0, len(m))
	for name, perms := range m {
		roles = append(roles, &Role{Name: name, Permissions: perms})
	}
	return NewRBAC(roles...)
}

// Role returns a role by name, or nil
func (r *RBAC) Role(name string) *Role {
	if r == nil {
		return nil
	}
	return r.roles[name]
}

// Grants reports whether the session holds perm. Super admins hold every
// permission; otherwise the session's own permissions and its roles are
// consulted.
func (r *RBAC) Grants(s *Session, perm string) bool {
	if s == nil {
		return false
	}
	if s.SuperAdmin {
		return true
	}
	for _, p := range s.Permissions {
		if matchPermission(p, perm) {
			return true
		}
	}
	for _, name := range s.Roles {
		if role := r.Role(name); role != nil && role.HasPermission(perm) {
			return true
		}
	}
	return false
}
