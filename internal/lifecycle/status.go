package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/sirupsen/logrus"
)

// effect writes the status change and its side effects for one action. The
// order is locked and the transition already validated.
type effect func(ctx context.Context, tx *sql.Tx, order *models.Order, to string, at time.Time) error

func (m *Manager) ConfirmOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error) {
	return m.transition(ctx, actor, orderID, models.ActionConfirm, m.setStatus)
}

// RejectOrder is the restaurant turning an order down before preparation.
// Stock is restored exactly as for a cancellation.
func (m *Manager) RejectOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error) {
	return m.transition(ctx, actor, orderID, models.ActionReject, m.cancel)
}

func (m *Manager) CancelOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error) {
	return m.transition(ctx, actor, orderID, models.ActionCancel, m.cancel)
}

func (m *Manager) StartPreparing(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error) {
	return m.transition(ctx, actor, orderID, models.ActionStartPreparing, m.setStatus)
}

// MarkReadyForPickup puts the order out for delivery, unassigned, where every
// courier can see it.
func (m *Manager) MarkReadyForPickup(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error) {
	return m.transition(ctx, actor, orderID, models.ActionMarkReady, m.setStatus)
}

// AcceptDelivery assigns the order to the courier, who must be Available.
func (m *Manager) AcceptDelivery(ctx context.Context, actor auth.Role, orderID, deliveryPersonID int64) (*models.Order, error) {
	if err := auth.AuthorizeCourier(actor, deliveryPersonID); err != nil {
		return nil, err
	}

	return m.transition(ctx, actor, orderID, models.ActionAcceptDelivery,
		func(ctx context.Context, tx *sql.Tx, order *models.Order, _ string, at time.Time) error {
			dp, err := store.LockDeliveryPerson(ctx, tx, deliveryPersonID)
			if err != nil {
				return err
			}
			if dp.Status != models.DeliveryPersonAvailable {
				return apperr.Validation("delivery_person", "is "+dp.Status+", not Available")
			}
			if err := store.AssignDeliveryPerson(ctx, tx, order.ID, dp.ID, at); err != nil {
				return err
			}
			if err := store.SetDeliveryPersonStatus(ctx, tx, dp.ID, models.DeliveryPersonOnDelivery); err != nil {
				return err
			}

			order.DeliveryPersonID = &dp.ID
			order.AssignedTime = &at
			return nil
		})
}

// CompleteDelivery marks the order delivered and paid, whatever the payment
// method, and books the delivery fee to the courier.
func (m *Manager) CompleteDelivery(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error) {
	return m.transition(ctx, actor, orderID, models.ActionComplete,
		func(ctx context.Context, tx *sql.Tx, order *models.Order, _ string, at time.Time) error {
			if err := store.CompleteOrder(ctx, tx, order.ID, at); err != nil {
				return err
			}
			if err := store.RecordCompletedDelivery(ctx, tx, *order.DeliveryPersonID, order.DeliveryFee); err != nil {
				return err
			}

			order.ActualDeliveryTime = &at
			order.PaymentStatus = models.PaymentStatusPaid
			return nil
		})
}

func (m *Manager) setStatus(ctx context.Context, tx *sql.Tx, order *models.Order, to string, _ time.Time) error {
	return store.UpdateOrderStatus(ctx, tx, order.ID, order.DeliveryStatus, to)
}

// cancel is the only compensating transition: every line's quantity goes
// back to its menu item.
func (m *Manager) cancel(ctx context.Context, tx *sql.Tx, order *models.Order, to string, at time.Time) error {
	if err := m.setStatus(ctx, tx, order, to, at); err != nil {
		return err
	}

	items, err := store.ListOrderItems(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := store.RestoreStock(ctx, tx, item.MenuItemID, item.Quantity, m.pricing.RestoreFlipsAvailability); err != nil {
			return err
		}
	}
	order.Items = items
	return nil
}

func (m *Manager) transition(ctx context.Context, actor auth.Role, orderID int64, action string, apply effect) (*models.Order, error) {
	var (
		order *models.Order
		from  string
		to    string
	)
	at := m.now()

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		o, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}

		next, err := NextStatus(action, o)
		if err != nil {
			// Callers outside the order must not learn its status.
			if !auth.CanViewOrder(actor, o) {
				return fmt.Errorf("%w: %s may not %s order %d", apperr.ErrForbidden, auth.Actor(actor), action, o.ID)
			}
			return err
		}
		if err := auth.AuthorizeOrder(actor, action, o); err != nil {
			return err
		}

		if err := apply(ctx, tx, o, next, at); err != nil {
			return err
		}
		if err := store.AppendStatusChange(ctx, tx, o.ID, o.DeliveryStatus, next, action, auth.Actor(actor), at); err != nil {
			return err
		}

		order, from, to = o, o.DeliveryStatus, next
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence(action, err)
	}

	order.DeliveryStatus = to

	m.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"from":         from,
		"to":           to,
		"action":       action,
		"actor":        auth.Actor(actor),
	}).Info("order transition applied")

	event := events.NewOrderEvent(events.TypeOrderStatusChanged, action, at)
	event.FromStatus = from
	event.ToStatus = to
	m.afterCommit(ctx, order, event)

	return order, nil
}

// ToggleDeliveryPersonAvailability flips a courier between Available and
// Assigned (off shift). A courier out on a delivery cannot toggle.
func (m *Manager) ToggleDeliveryPersonAvailability(ctx context.Context, actor auth.Role, deliveryPersonID int64) (string, error) {
	if err := auth.AuthorizeCourier(actor, deliveryPersonID); err != nil {
		return "", err
	}

	var from, to string
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		dp, err := store.LockDeliveryPerson(ctx, tx, deliveryPersonID)
		if err != nil {
			return err
		}

		switch dp.Status {
		case models.DeliveryPersonAvailable:
			to = models.DeliveryPersonAssigned
		case models.DeliveryPersonAssigned:
			to = models.DeliveryPersonAvailable
		default:
			return apperr.Validation("status", "cannot toggle availability while "+dp.Status)
		}
		from = dp.Status
		return store.SetDeliveryPersonStatus(ctx, tx, dp.ID, to)
	})
	if err != nil {
		return "", apperr.Persistence("toggle availability", err)
	}

	m.log.WithFields(logrus.Fields{
		"delivery_person_id": deliveryPersonID,
		"from":               from,
		"to":                 to,
	}).Info("delivery person availability toggled")

	return to, nil
}
