// Package access implements flat role-based authorization: named roles,
// membership sets, and a single root role that administers every role
// including itself. A Controller is a cloneable value so instances can
// snapshot it inside a transaction.
package access

import (
	"sort"

	"agentcore/pkg/domain"
)

// Controller holds role membership for one instance. Construct with New.
type Controller struct {
	members map[domain.Role]map[domain.Address]struct{}
}

// New returns a controller with no memberships.
func New() Controller {
	return Controller{members: make(map[domain.Role]map[domain.Address]struct{})}
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (c Controller) Clone() Controller {
	cloned := New()
	for role, set := range c.members {
		cp := make(map[domain.Address]struct{}, len(set))
		for acct := range set {
			cp[acct] = struct{}{}
		}
		cloned.members[role] = cp
	}
	return cloned
}

// HasRole reports whether account currently holds role.
func (c Controller) HasRole(role domain.Role, account domain.Address) bool {
	set, ok := c.members[role]
	if !ok {
		return false
	}
	_, ok = set[account]
	return ok
}

// Grant adds account to role. The caller must hold the root role. Granting an
// already-held role is a no-op success; the returned bool reports whether
// membership actually changed.
func (c *Controller) Grant(caller domain.Address, role domain.Role, account domain.Address) (bool, error) {
	if !c.HasRole(domain.RoleAdmin, caller) {
		return false, domain.UnauthorizedError{Caller: caller, Role: domain.RoleAdmin}
	}
	return c.put(role, account), nil
}

// Revoke removes account from role. Symmetric with Grant.
func (c *Controller) Revoke(caller domain.Address, role domain.Role, account domain.Address) (bool, error) {
	if !c.HasRole(domain.RoleAdmin, caller) {
		return false, domain.UnauthorizedError{Caller: caller, Role: domain.RoleAdmin}
	}
	set, ok := c.members[role]
	if !ok {
		return false, nil
	}
	if _, held := set[account]; !held {
		return false, nil
	}
	delete(set, account)
	if len(set) == 0 {
		delete(c.members, role)
	}
	return true, nil
}

// Seed adds account to role without an authorization check. Only instance
// constructors use it, before the instance is reachable by callers.
func (c *Controller) Seed(role domain.Role, account domain.Address) bool {
	return c.put(role, account)
}

func (c *Controller) put(role domain.Role, account domain.Address) bool {
	if c.members == nil {
		c.members = make(map[domain.Role]map[domain.Address]struct{})
	}
	set, ok := c.members[role]
	if !ok {
		set = make(map[domain.Address]struct{})
		c.members[role] = set
	}
	if _, held := set[account]; held {
		return false
	}
	set[account] = struct{}{}
	return true
}

// Members returns the accounts holding role, ordered lexicographically.
func (c Controller) Members(role domain.Role) []domain.Address {
	set := c.members[role]
	out := make([]domain.Address, 0, len(set))
	for acct := range set {
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Roles returns every role with at least one member, ordered lexicographically.
func (c Controller) Roles() []domain.Role {
	out := make([]domain.Role, 0, len(c.members))
	for role := range c.members {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
