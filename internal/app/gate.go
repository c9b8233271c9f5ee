package app

import "github.com/ciclogit/opskernel/internal/domain"

// Gate enforces role membership and tenant scoping. It runs before any
// rule or state check so unauthorized callers never learn about internal
// validation failures.
type Gate struct{}

// Authorize checks that the principal's role is in the operation's
// allowed set and that the target entity belongs to the principal's
// tenant. Cross-tenant access is always denied, admins included: an admin
// acts within an explicit tenant context. The returned error is the
// generic domain.ErrUnauthorized in every denial case.
func (Gate) Authorize(p domain.Principal, def domain.OperationDefinition, target domain.Entity) error {
	if !domain.ValidRole(p.Role) || !def.Allows(p.Role) {
		return domain.ErrUnauthorized
	}
	if p.TenantID == "" || p.TenantID != target.TenantID {
		return domain.ErrUnauthorized
	}
	return nil
}
