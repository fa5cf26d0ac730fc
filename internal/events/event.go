// Package events carries order status changes out of the lifecycle core
// after their transaction commits. Publishing never affects the outcome of
// the operation that produced the event.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
	TypeOrderRated         = "order.rated"
)

type OrderEvent struct {
	ID               uuid.UUID `json:"id"`
	Type             string    `json:"type"`
	OrderID          int64     `json:"order_id"`
	OrderNumber      string    `json:"order_number,omitempty"`
	CustomerID       int64     `json:"customer_id"`
	RestaurantID     int64     `json:"restaurant_id"`
	DeliveryPersonID *int64    `json:"delivery_person_id,omitempty"`
	FromStatus       string    `json:"from_status,omitempty"`
	ToStatus         string    `json:"to_status,omitempty"`
	Action           string    `json:"action"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewOrderEvent stamps a fresh event id.
func NewOrderEvent(eventType, action string, at time.Time) OrderEvent {
	return OrderEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Action:     action,
		OccurredAt: at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// Fanout delivers every event to each publisher in turn. A failing publisher
// does not stop the others; their errors are joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event OrderEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, OrderEvent) error { return nil }
