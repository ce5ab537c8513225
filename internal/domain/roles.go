// Package domain defines shared domain constants and types.
package domain

const (
	// RoleUser represents a standard user with no elevated privileges.
	RoleUser = "user"
	// RoleReseller represents a user authorized to view reports for an
	// assigned subset of inbounds.
	RoleReseller = "reseller"
)

// ValidRole reports whether the given role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleReseller
}
