package enums

import "fmt"

// StaffRole is the role carried in a staff access token.
type StaffRole string

const (
	StaffRoleAdmin   StaffRole = "admin"
	StaffRoleCashier StaffRole = "cashier"
	StaffRoleKitchen StaffRole = "kitchen"
	StaffRoleWaiter  StaffRole = "waiter"
)

var validStaffRoles = []StaffRole{
	StaffRoleAdmin,
	StaffRoleCashier,
	StaffRoleKitchen,
	StaffRoleWaiter,
}

// String implements fmt.Stringer.
func (s StaffRole) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StaffRole.
func (s StaffRole) IsValid() bool {
	for _, candidate := range validStaffRoles {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStaffRole converts raw input into a StaffRole.
func ParseStaffRole(value string) (StaffRole, error) {
	for _, candidate := range validStaffRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid staff role %q", value)
}
