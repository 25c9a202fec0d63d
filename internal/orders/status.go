package orders

import (
	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablepos-backend/pkg/errors"
)

var statusTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:    {enums.OrderStatusClosed},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validateStatusTransition(from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if CanTransition(from, to) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
		WithDetails(map[string]any{"from": from, "to": to, "allowed": statusTransitions[from]})
}

// eventFor maps a target status to the outbox event it produces.
func eventFor(to enums.OrderStatus) enums.OutboxEventType {
	switch to {
	case enums.OrderStatusPaid:
		return enums.EventOrderPaid
	case enums.OrderStatusClosed:
		return enums.EventOrderClosed
	case enums.OrderStatusCancelled:
		return enums.EventOrderCancelled
	default:
		return enums.EventOrderStatusChanged
	}
}

// releasedTableStatus is where a table goes once its last open order ends.
func releasedTableStatus(to enums.OrderStatus) (enums.TableStatus, bool) {
	switch to {
	case enums.OrderStatusClosed:
		return enums.TableStatusNeedsCleaning, true
	case enums.OrderStatusCancelled:
		return enums.TableStatusEmpty, true
	default:
		return "", false
	}
}
