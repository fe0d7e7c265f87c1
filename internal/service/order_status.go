package service

import (
	"fmt"

	"marketplace-service/internal/apperr"
	"marketplace-service/internal/models"
)

var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusCompleted, models.OrderStatusCancelled},
	models.OrderStatusCompleted: {models.OrderStatusCancelled, models.OrderStatusReturned},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SoldDelta is the total_sold change implied by moving an order from -> to.
func SoldDelta(from, to models.OrderStatus) int {
	switch {
	case from == to:
		return 0
	case to == models.OrderStatusCompleted:
		return 1
	case from == models.OrderStatusCompleted:
		return -1
	}
	return 0
}

// ApplyStatusTransition moves order to next. Re-applying the current status
// succeeds with a zero delta.
func ApplyStatusTransition(order *models.Order, next models.OrderStatus) (models.StatusTransition, error) {
	const op = "ApplyStatusTransition"

	if !next.Valid() {
		return models.StatusTransition{}, apperr.Validation(apperr.ReasonInvalidStatus, op,
			fmt.Sprintf("unknown order status %q", next))
	}

	t := models.StatusTransition{From: order.Status, To: next}
	if t.Noop() {
		return t, nil
	}
	if !CanTransition(order.Status, next) {
		return models.StatusTransition{}, apperr.State(apperr.ReasonIllegalTransition, op,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, next))
	}

	t.SoldDelta = SoldDelta(order.Status, next)
	order.Status = next
	return t, nil
}

func lineItemIDs(order *models.Order) []string {
	ids := make([]string, 0, len(order.Lines))
	for _, line := range order.Lines {
		ids = append(ids, line.ItemID)
	}
	return ids
}
