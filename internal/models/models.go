package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Restaurant struct {
	ID          int64           `json:"id"`
	OwnerUserID int64           `json:"owner_user_id"`
	Name        string          `json:"name"`
	Rating      decimal.Decimal `json:"rating"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type MenuItem struct {
	ID            int64               `json:"id"`
	RestaurantID  int64               `json:"restaurant_id"`
	Name          string              `json:"name"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discount_price"`
	StockQuantity int                 `json:"stock_quantity"`
	Availability  string              `json:"availability"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version"`
}

// EffectivePrice is the price a cart line is charged at: a positive discount
// price when one is set, the list price otherwise. A zero discount is a
// cleared discount, not a free dish.
func (m MenuItem) EffectivePrice() decimal.Decimal {
	if m.DiscountPrice.Valid && m.DiscountPrice.Decimal.IsPositive() {
		return m.DiscountPrice.Decimal
	}
	return m.Price
}

type Order struct {
	ID                    int64           `json:"id"`
	CustomerID            int64           `json:"customer_id"`
	RestaurantID          int64           `json:"restaurant_id"`
	DeliveryPersonID      *int64          `json:"delivery_person_id,omitempty"`
	OrderNumber           string          `json:"order_number"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	Tax                   decimal.Decimal `json:"tax"`
	DiscountAmount        decimal.Decimal `json:"discount_amount"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	DeliveryStatus        string          `json:"delivery_status"`
	PaymentMethod         string          `json:"payment_method"`
	PaymentStatus         string          `json:"payment_status"`
	DeliveryName          string          `json:"delivery_name"`
	DeliveryPhone         string          `json:"delivery_phone"`
	DeliveryAddress       string          `json:"delivery_address"`
	IsRated               bool            `json:"is_rated"`
	OrderTime             time.Time       `json:"order_time"`
	EstimatedDeliveryTime *time.Time      `json:"estimated_delivery_time,omitempty"`
	ActualDeliveryTime    *time.Time      `json:"actual_delivery_time,omitempty"`
	AssignedTime          *time.Time      `json:"assigned_time,omitempty"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Version               int             `json:"version"`
	Items                 []OrderItem     `json:"items,omitempty"`
}

type OrderItem struct {
	ID         int64           `json:"id"`
	OrderID    int64           `json:"order_id"`
	MenuItemID int64           `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
}

type DeliveryPerson struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Status          string          `json:"status"`
	AvgRating       decimal.Decimal `json:"avg_rating"`
	TotalDeliveries int             `json:"total_deliveries"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Rating struct {
	ID               int64     `json:"id"`
	OrderID          int64     `json:"order_id"`
	CustomerID       int64     `json:"customer_id"`
	RestaurantID     int64     `json:"restaurant_id"`
	DeliveryPersonID *int64    `json:"delivery_person_id,omitempty"`
	FoodRating       int       `json:"food_rating"`
	DeliveryRating   int       `json:"delivery_rating"`
	Comment          string    `json:"comment,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// StatusChange is one row of the order status log.
type StatusChange struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"order_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

const (
	OrderStatusPending    = "Pending"
	OrderStatusConfirmed  = "Confirmed"
	OrderStatusPreparing  = "Preparing"
	OrderStatusOnDelivery = "On Delivery"
	OrderStatusDelivered  = "Delivered"
	OrderStatusCancelled  = "Cancelled"
)

const (
	AvailabilityInStock    = "In Stock"
	AvailabilityOutOfStock = "Out of Stock"
)

const (
	DeliveryPersonAvailable  = "Available"
	DeliveryPersonAssigned   = "Assigned"
	DeliveryPersonOnDelivery = "On Delivery"
)

const (
	PaymentStatusPending = "Pending"
	PaymentStatusPaid    = "Paid"
)

const (
	PaymentMethodCash   = "Cash"
	PaymentMethodCard   = "Card"
	PaymentMethodWallet = "Wallet"
)

const (
	RoleCustomer   = "customer"
	RoleRestaurant = "restaurant"
	RoleDelivery   = "delivery"
	RoleAdmin      = "admin"
)

// IsTerminal reports whether no further transition can leave status.
func IsTerminal(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}

func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodWallet:
		return true
	}
	return false
}

// Actions name the operations that move an order, as recorded in the status
// log and carried on events.
const (
	ActionPlace          = "place"
	ActionConfirm        = "confirm"
	ActionReject         = "reject"
	ActionCancel         = "cancel"
	ActionStartPreparing = "start_preparing"
	ActionMarkReady      = "mark_ready"
	ActionAcceptDelivery = "accept_delivery"
	ActionComplete       = "complete"
	ActionRate           = "rate"
)
