package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/shopspring/decimal"
)

type RatingSummary struct {
	RestaurantID int64           `json:"restaurant_id"`
	Average      decimal.Decimal `json:"average"`
	Count        int             `json:"count"`
	Distribution map[string]int  `json:"distribution"`
}

func InsertRating(ctx context.Context, q database.Querier, r *models.Rating) error {
	var deliveryPersonID sql.NullInt64
	if r.DeliveryPersonID != nil {
		deliveryPersonID = sql.NullInt64{Int64: *r.DeliveryPersonID, Valid: true}
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO ratings (order_id, customer_id, restaurant_id, delivery_person_id, food_rating, delivery_rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		r.OrderID, r.CustomerID, r.RestaurantID, deliveryPersonID, r.FoodRating, r.DeliveryRating, r.Comment).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "ratings_order_id_key") {
			return apperr.Validation("order", "order has already been rated")
		}
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

func GetRatingByOrder(ctx context.Context, q database.Querier, orderID int64) (*models.Rating, error) {
	r := &models.Rating{}
	var deliveryPersonID sql.NullInt64

	err := q.QueryRowContext(ctx,
		`SELECT id, order_id, customer_id, restaurant_id, delivery_person_id, food_rating, delivery_rating, comment, created_at
		 FROM ratings WHERE order_id = $1`, orderID).Scan(
		&r.ID,
		&r.OrderID,
		&r.CustomerID,
		&r.RestaurantID,
		&deliveryPersonID,
		&r.FoodRating,
		&r.DeliveryRating,
		&r.Comment,
		&r.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("rating for order", orderID)
		}
		return nil, fmt.Errorf("get rating: %w", err)
	}

	if deliveryPersonID.Valid {
		id := deliveryPersonID.Int64
		r.DeliveryPersonID = &id
	}
	return r, nil
}

// GetRatingSummary returns the mean food rating and the 1..5 distribution
// for a restaurant.
func GetRatingSummary(ctx context.Context, q database.Querier, restaurantID int64) (*RatingSummary, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT food_rating, COUNT(*)
		 FROM ratings
		 WHERE restaurant_id = $1
		 GROUP BY food_rating
		 ORDER BY food_rating`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("rating distribution: %w", err)
	}
	defer rows.Close()

	summary := &RatingSummary{
		RestaurantID: restaurantID,
		Distribution: map[string]int{"1": 0, "2": 0, "3": 0, "4": 0, "5": 0},
	}

	sum := 0
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("scan rating distribution: %w", err)
		}
		summary.Distribution[strconv.Itoa(rating)] = count
		summary.Count += count
		sum += rating * count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if summary.Count > 0 {
		summary.Average = decimal.NewFromInt(int64(sum)).
			DivRound(decimal.NewFromInt(int64(summary.Count)), 2)
	}
	return summary, nil
}
