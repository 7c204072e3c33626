package shared

// Identity roles.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// ValidRole reports whether role is one of the known identity roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}
