// Package kitchen owns the line item status machine, the aggregation used by
// every kitchen view and the kitchen board service built on the shared cache.
package kitchen

import (
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
)

// transitions lists every legal move. Forward moves follow the ticket
// through the kitchen; the two backward moves undo a mis-tap before the
// dish leaves the pass. Nothing leaves served.
var transitions = map[enums.LineItemStatus][]enums.LineItemStatus{
	enums.LineItemStatusWaiting:    {enums.LineItemStatusInProgress},
	enums.LineItemStatusInProgress: {enums.LineItemStatusCompleted, enums.LineItemStatusWaiting},
	enums.LineItemStatusCompleted:  {enums.LineItemStatusServed, enums.LineItemStatusInProgress},
	enums.LineItemStatusServed:     nil,
}

var labels = map[enums.LineItemStatus]string{
	enums.LineItemStatusWaiting:    "Chờ làm",
	enums.LineItemStatusInProgress: "Đang làm",
	enums.LineItemStatusCompleted:  "Đã xong",
	enums.LineItemStatusServed:     "Đã phục vụ",
}

var colors = map[enums.LineItemStatus]string{
	enums.LineItemStatusWaiting:    "#F59E0B",
	enums.LineItemStatusInProgress: "#3B82F6",
	enums.LineItemStatusCompleted:  "#10B981",
	enums.LineItemStatusServed:     "#6B7280",
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to enums.LineItemStatus) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Next is the forward step from status. ok is false for served and unknown
// statuses.
func Next(status enums.LineItemStatus) (enums.LineItemStatus, bool) {
	next := transitions[status]
	if len(next) == 0 {
		return "", false
	}
	return next[0], true
}

// IsTerminal reports whether the line item can no longer change.
func IsTerminal(status enums.LineItemStatus) bool {
	return status == enums.LineItemStatusServed
}

// IsKitchenDone reports whether the kitchen has nothing left to do for the
// line: completed and served both end the kitchen's part.
func IsKitchenDone(status enums.LineItemStatus) bool {
	return status == enums.LineItemStatusCompleted || status == enums.LineItemStatusServed
}

func Label(status enums.LineItemStatus) string {
	if label, ok := labels[status]; ok {
		return label
	}
	return string(status)
}

func Color(status enums.LineItemStatus) string {
	if color, ok := colors[status]; ok {
		return color
	}
	return "#9CA3AF"
}

// ValidateTransition returns a STATE_CONFLICT error describing why from ->
// to is rejected, or a VALIDATION_ERROR for unknown statuses.
func ValidateTransition(from, to enums.LineItemStatus) error {
	if !to.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown line item status %q", to)
	}
	if !from.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "line item has unknown status %q", from)
	}
	if from == to {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "line item is already %s", to).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	if IsTerminal(from) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "served line items cannot change status").
			WithDetails(map[string]any{"from": from, "to": to})
	}
	if !CanTransition(from, to) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move line item from %s to %s", from, to).
			WithDetails(map[string]any{"from": from, "to": to, "allowed": transitions[from]})
	}
	return nil
}
