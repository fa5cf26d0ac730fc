package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxCommentLength = 1000

func validateScore(field string, v int) error {
	if v < 1 || v > 5 {
		return apperr.Validation(field, "must be between 1 and 5")
	}
	return nil
}

// SubmitRating records the customer's feedback on a delivered order, once.
// The restaurant's and the courier's averages are then recomputed over every
// rating they have, inside the same transaction.
func (m *Manager) SubmitRating(ctx context.Context, actor auth.Role, orderID int64, foodRating, deliveryRating int, comment string) (*models.Rating, error) {
	if err := validateScore("food_rating", foodRating); err != nil {
		return nil, err
	}
	if err := validateScore("delivery_rating", deliveryRating); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxCommentLength {
		return nil, apperr.Validation("comment", "is too long")
	}

	var (
		order         *models.Order
		rating        *models.Rating
		restaurantAvg decimal.Decimal
		courierAvg    decimal.Decimal
	)

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		o, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.DeliveryStatus != models.OrderStatusDelivered {
			if !auth.CanViewOrder(actor, o) {
				return fmt.Errorf("%w: %s may not rate order %d", apperr.ErrForbidden, auth.Actor(actor), o.ID)
			}
			return &apperr.InvalidTransitionError{OrderID: o.ID, From: o.DeliveryStatus, Action: models.ActionRate}
		}
		if err := auth.AuthorizeOrder(actor, models.ActionRate, o); err != nil {
			return err
		}
		if o.IsRated {
			return apperr.Validation("order", "order has already been rated")
		}

		r := &models.Rating{
			OrderID:          o.ID,
			CustomerID:       o.CustomerID,
			RestaurantID:     o.RestaurantID,
			DeliveryPersonID: o.DeliveryPersonID,
			FoodRating:       foodRating,
			DeliveryRating:   deliveryRating,
			Comment:          comment,
		}
		if err := store.InsertRating(ctx, tx, r); err != nil {
			return err
		}
		if err := store.MarkOrderRated(ctx, tx, o.ID); err != nil {
			return err
		}

		restaurantAvg, err = store.RecomputeRestaurantRating(ctx, tx, o.RestaurantID)
		if err != nil {
			return err
		}
		if o.DeliveryPersonID != nil {
			courierAvg, err = store.RecomputeDeliveryPersonRating(ctx, tx, *o.DeliveryPersonID)
			if err != nil {
				return err
			}
		}

		o.IsRated = true
		order, rating = o, r
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("submit rating", err)
	}

	m.log.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"action":         models.ActionRate,
		"restaurant_avg": restaurantAvg.StringFixed(2),
	}).Info("rating recorded")

	m.mirrorRatings(ctx, order, restaurantAvg, courierAvg)

	event := events.NewOrderEvent(events.TypeOrderRated, models.ActionRate, rating.CreatedAt)
	event.FromStatus = order.DeliveryStatus
	event.ToStatus = order.DeliveryStatus
	m.afterCommit(ctx, order, event)

	return rating, nil
}

func (m *Manager) mirrorRatings(ctx context.Context, order *models.Order, restaurantAvg, courierAvg decimal.Decimal) {
	if m.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	summary, err := store.GetRatingSummary(ctx, m.db, order.RestaurantID)
	if err != nil {
		m.log.WithError(err).WithField("restaurant_id", order.RestaurantID).Warn("read rating summary")
	} else if err := m.cache.MirrorRestaurantRating(ctx, order.RestaurantID, restaurantAvg, summary.Count); err != nil {
		m.log.WithError(err).WithField("restaurant_id", order.RestaurantID).Warn("mirror restaurant rating")
	}

	if order.DeliveryPersonID != nil {
		if err := m.cache.MirrorCourierRating(ctx, *order.DeliveryPersonID, courierAvg); err != nil {
			m.log.WithError(err).WithField("delivery_person_id", *order.DeliveryPersonID).Warn("mirror courier rating")
		}
	}
}
