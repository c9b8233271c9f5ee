package domain

// Role identifies what an actor is allowed to do. The set is closed:
// operation definitions reference roles by value, never by pattern.
type Role string

const (
	RoleProducer       Role = "producer"
	RoleSupplier       Role = "supplier"
	RoleIntegrator     Role = "integrator"
	RoleManager        Role = "manager"
	RoleTrafficManager Role = "traffic_manager"
	RoleOperator       Role = "operator"
	RoleAdmin          Role = "admin"
)

// Roles lists every known role, in a stable order, for introspection
// and input validation.
var Roles = []Role{
	RoleProducer,
	RoleSupplier,
	RoleIntegrator,
	RoleManager,
	RoleTrafficManager,
	RoleOperator,
	RoleAdmin,
}

// ValidRole reports whether r is one of the closed role set.
func ValidRole(r Role) bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Principal is an already-authenticated actor. Identity issuance happens
// upstream; the kernel only consumes the result. A principal acts under
// exactly one role and one tenant per request, including admins: there is
// no cross-tenant escape hatch.
type Principal struct {
	ID       string
	Role     Role
	TenantID string
}
