package auth

import (
	"fmt"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/models"
)

// ErrForbidden is the taxonomy's forbidden kind, re-exported for callers that
// only deal with roles.
var ErrForbidden = apperr.ErrForbidden

// Role is the signed-in principal. The variants are closed: Customer,
// Restaurant, Delivery and Admin are the only implementations.
type Role interface {
	Name() string
	UserID() int64
	isRole()
}

type Customer struct{ User int64 }

type Restaurant struct {
	User         int64
	RestaurantID int64
}

type Delivery struct {
	User             int64
	DeliveryPersonID int64
}

type Admin struct{ User int64 }

func (Customer) Name() string   { return models.RoleCustomer }
func (Restaurant) Name() string { return models.RoleRestaurant }
func (Delivery) Name() string   { return models.RoleDelivery }
func (Admin) Name() string      { return models.RoleAdmin }

func (r Customer) UserID() int64   { return r.User }
func (r Restaurant) UserID() int64 { return r.User }
func (r Delivery) UserID() int64   { return r.User }
func (r Admin) UserID() int64      { return r.User }

func (Customer) isRole()   {}
func (Restaurant) isRole() {}
func (Delivery) isRole()   {}
func (Admin) isRole()      {}

// Actor renders the role for the status log, e.g. "restaurant:3".
func Actor(role Role) string {
	if role == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", role.Name(), role.UserID())
}

func forbidden(role Role, action string, orderID int64) error {
	return fmt.Errorf("%w: %s may not %s order %d", ErrForbidden, roleName(role), action, orderID)
}

// AuthorizeOrder decides whether role may perform action on order. The
// order's current status is not checked here; that is the state machine's
// job.
func AuthorizeOrder(role Role, action string, order *models.Order) error {
	switch r := role.(type) {
	case Admin:
		return nil

	case Customer:
		if order.CustomerID != r.User {
			return forbidden(role, action, order.ID)
		}
		switch action {
		case models.ActionCancel, models.ActionRate:
			return nil
		}

	case Restaurant:
		if order.RestaurantID != r.RestaurantID {
			return forbidden(role, action, order.ID)
		}
		switch action {
		case models.ActionConfirm, models.ActionReject, models.ActionCancel,
			models.ActionStartPreparing, models.ActionMarkReady:
			return nil
		}

	case Delivery:
		switch action {
		case models.ActionAcceptDelivery:
			if order.DeliveryPersonID == nil {
				return nil
			}
		case models.ActionComplete:
			if order.DeliveryPersonID != nil && *order.DeliveryPersonID == r.DeliveryPersonID {
				return nil
			}
		}
	}

	return forbidden(role, action, order.ID)
}

// CanView reports whether role may read an order with the given parties and
// status. Couriers see the pool of unassigned On Delivery orders plus their
// own.
func CanView(role Role, customerID, restaurantID int64, deliveryPersonID *int64, status string) bool {
	switch r := role.(type) {
	case Admin:
		return true
	case Customer:
		return customerID == r.User
	case Restaurant:
		return restaurantID == r.RestaurantID
	case Delivery:
		if deliveryPersonID != nil {
			return *deliveryPersonID == r.DeliveryPersonID
		}
		return status == models.OrderStatusOnDelivery
	}
	return false
}

// AuthorizeCourier lets a courier act on their own record; admins act on any.
func AuthorizeCourier(role Role, deliveryPersonID int64) error {
	switch r := role.(type) {
	case Admin:
		return nil
	case Delivery:
		if r.DeliveryPersonID == deliveryPersonID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not act for delivery person %d", ErrForbidden, roleName(role), deliveryPersonID)
}

// AuthorizeRestaurant lets a restaurant manage its own menu; admins manage any.
func AuthorizeRestaurant(role Role, restaurantID int64) error {
	switch r := role.(type) {
	case Admin:
		return nil
	case Restaurant:
		if r.RestaurantID == restaurantID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not manage restaurant %d", ErrForbidden, roleName(role), restaurantID)
}

func roleName(role Role) string {
	if role == nil {
		return "anonymous"
	}
	return role.Name()
}

func CanViewOrder(role Role, order *models.Order) bool {
	return CanView(role, order.CustomerID, order.RestaurantID, order.DeliveryPersonID, order.DeliveryStatus)
}
