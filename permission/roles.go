package permission

import (
	"fmt"
	"sync"
)

// Roles maps the role names carried in identity tokens to [Grants].
// A role may be a composite: it grants every permission it lists.
type Roles struct {
	registry *Registry

	mu     sync.RWMutex
	grants map[string]Grants
	frozen bool
}

// NewRoles returns an empty role table over registry.
func NewRoles(registry *Registry) *Roles {
	return &Roles{registry: registry, grants: make(map[string]Grants)}
}

// Define binds role to the union of perms. Every permission must already
// be registered.
func (rs *Roles) Define(role string, perms []string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.frozen {
		return ErrFrozen
	}
	if role == "" {
		return fmt.Errorf("%w: role", ErrEmptyName)
	}
	if _, ok := rs.grants[role]; ok {
		return fmt.Errorf("%w: role %s", ErrDuplicate, role)
	}

	var g Grants
	for _, p := range perms {
		bit, ok := rs.registry.Lookup(p)
		if !ok {
			return fmt.Errorf("%w: %s (role %s)", ErrUnknown, p, role)
		}
		g = g.With(bit)
	}
	rs.grants[role] = g
	return nil
}

// Grants unions the grants of roles. Unknown roles contribute nothing.
func (rs *Roles) Grants(roles []string) Grants {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	var g Grants
	for _, role := range roles {
		g |= rs.grants[role]
	}
	return g
}

// Allows reports whether roles together grant perm.
func (rs *Roles) Allows(roles []string, perm string) bool {
	return rs.registry.Satisfies(rs.Grants(roles), perm)
}

// Freeze stops further definitions.
func (rs *Roles) Freeze() {
	rs.mu.Lock()
	rs.frozen = true
	rs.mu.Unlock()
}

// Len is the number of defined roles.
func (rs *Roles) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.grants)
}
