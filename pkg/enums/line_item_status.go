package enums

import "fmt"

// LineItemStatus tracks a kitchen ticket line from order entry to the guest.
type LineItemStatus string

const (
	LineItemStatusWaiting    LineItemStatus = "waiting"
	LineItemStatusInProgress LineItemStatus = "in_progress"
	LineItemStatusCompleted  LineItemStatus = "completed"
	LineItemStatusServed     LineItemStatus = "served"
)

var validLineItemStatuses = []LineItemStatus{
	LineItemStatusWaiting,
	LineItemStatusInProgress,
	LineItemStatusCompleted,
	LineItemStatusServed,
}

// String implements fmt.Stringer.
func (l LineItemStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LineItemStatus.
func (l LineItemStatus) IsValid() bool {
	for _, candidate := range validLineItemStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLineItemStatus converts raw input into a LineItemStatus.
func ParseLineItemStatus(value string) (LineItemStatus, error) {
	for _, candidate := range validLineItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid line item status %q", value)
}
