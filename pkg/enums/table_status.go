package enums

import "fmt"

// TableStatus is the floor state of a dining table.
type TableStatus string

const (
	TableStatusEmpty         TableStatus = "empty"
	TableStatusServing       TableStatus = "serving"
	TableStatusNeedsCleaning TableStatus = "needs_cleaning"
)

var validTableStatuses = []TableStatus{
	TableStatusEmpty,
	TableStatusServing,
	TableStatusNeedsCleaning,
}

// String implements fmt.Stringer.
func (t TableStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TableStatus.
func (t TableStatus) IsValid() bool {
	for _, candidate := range validTableStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTableStatus converts raw input into a TableStatus.
func ParseTableStatus(value string) (TableStatus, error) {
	for _, candidate := range validTableStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid table status %q", value)
}
