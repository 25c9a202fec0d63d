package enums

import "fmt"

// ChangeOp is the row operation carried by a change notification.
type ChangeOp string

const (
	ChangeOpInsert ChangeOp = "INSERT"
	ChangeOpUpdate ChangeOp = "UPDATE"
	ChangeOpDelete ChangeOp = "DELETE"
)

var validChangeOps = []ChangeOp{
	ChangeOpInsert,
	ChangeOpUpdate,
	ChangeOpDelete,
}

// String implements fmt.Stringer.
func (c ChangeOp) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ChangeOp.
func (c ChangeOp) IsValid() bool {
	for _, candidate := range validChangeOps {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseChangeOp converts raw input into a ChangeOp.
func ParseChangeOp(value string) (ChangeOp, error) {
	for _, candidate := range validChangeOps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid change op %q", value)
}

// WatchedTable names a table whose row changes are streamed to subscribers.
type WatchedTable string

const (
	WatchedOrders               WatchedTable = "orders"
	WatchedOrderItems           WatchedTable = "order_items"
	WatchedCartItems            WatchedTable = "cart_items"
	WatchedTables               WatchedTable = "tables"
	WatchedMenuItems            WatchedTable = "menu_items"
	WatchedReturnSlips          WatchedTable = "return_slips"
	WatchedCancellationRequests WatchedTable = "cancellation_requests"
	WatchedKitchenNotifications WatchedTable = "kitchen_notifications"
)

var validWatchedTables = []WatchedTable{
	WatchedOrders,
	WatchedOrderItems,
	WatchedCartItems,
	WatchedTables,
	WatchedMenuItems,
	WatchedReturnSlips,
	WatchedCancellationRequests,
	WatchedKitchenNotifications,
}

// String implements fmt.Stringer.
func (w WatchedTable) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WatchedTable.
func (w WatchedTable) IsValid() bool {
	for _, candidate := range validWatchedTables {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWatchedTable converts raw input into a WatchedTable.
func ParseWatchedTable(value string) (WatchedTable, error) {
	for _, candidate := range validWatchedTables {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid watched table %q", value)
}

// WatchedTableValues returns every watched table.
func WatchedTableValues() []WatchedTable {
	return append([]WatchedTable(nil), validWatchedTables...)
}
