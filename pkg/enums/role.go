package enums

// Role distinguishes storefront customers from backoffice admins.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// IsValid checks the role against the canonical set.
func (r Role) IsValid() bool {
	return r == RoleCustomer || r == RoleAdmin
}
