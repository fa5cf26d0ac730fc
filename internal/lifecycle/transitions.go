package lifecycle

import (
	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/models"
)

type transition struct {
	from []string
	to   string
}

var transitions = map[string]transition{
	models.ActionConfirm: {
		from: []string{models.OrderStatusPending},
		to:   models.OrderStatusConfirmed,
	},
	models.ActionReject: {
		from: []string{models.OrderStatusPending, models.OrderStatusConfirmed},
		to:   models.OrderStatusCancelled,
	},
	models.ActionCancel: {
		from: []string{models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusPreparing},
		to:   models.OrderStatusCancelled,
	},
	models.ActionStartPreparing: {
		from: []string{models.OrderStatusConfirmed},
		to:   models.OrderStatusPreparing,
	},
	models.ActionMarkReady: {
		from: []string{models.OrderStatusPreparing},
		to:   models.OrderStatusOnDelivery,
	},
	models.ActionAcceptDelivery: {
		from: []string{models.OrderStatusOnDelivery},
		to:   models.OrderStatusOnDelivery,
	},
	models.ActionComplete: {
		from: []string{models.OrderStatusOnDelivery},
		to:   models.OrderStatusDelivered,
	},
}

// NextStatus returns the status order moves to under action, or an
// InvalidTransitionError when action is not legal from its current state.
// On Delivery is split by assignment: only an unassigned order can be
// accepted and only an assigned one completed.
func NextStatus(action string, order *models.Order) (string, error) {
	t, ok := transitions[action]
	if !ok {
		return "", apperr.Validation("action", "unknown action "+action)
	}

	invalid := &apperr.InvalidTransitionError{OrderID: order.ID, From: order.DeliveryStatus, Action: action}

	if !contains(t.from, order.DeliveryStatus) {
		return "", invalid
	}

	switch action {
	case models.ActionAcceptDelivery:
		if order.DeliveryPersonID != nil {
			return "", invalid
		}
	case models.ActionComplete:
		if order.DeliveryPersonID == nil {
			return "", invalid
		}
	}

	return t.to, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
