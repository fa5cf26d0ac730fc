package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/shopspring/decimal"
)

func CreateRestaurant(ctx context.Context, q database.Querier, ownerUserID int64, name string) (*models.Restaurant, error) {
	r := &models.Restaurant{}

	query := `
		INSERT INTO restaurants (owner_user_id, name, rating, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		RETURNING id, owner_user_id, name, rating, created_at, updated_at`

	err := q.QueryRowContext(ctx, query, ownerUserID, name).Scan(
		&r.ID,
		&r.OwnerUserID,
		&r.Name,
		&r.Rating,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create restaurant: %w", err)
	}

	return r, nil
}

func GetRestaurant(ctx context.Context, q database.Querier, id int64) (*models.Restaurant, error) {
	r := &models.Restaurant{}

	query := `
		SELECT id, owner_user_id, name, rating, created_at, updated_at
		FROM restaurants
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&r.ID,
		&r.OwnerUserID,
		&r.Name,
		&r.Rating,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("restaurant", id)
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}

	return r, nil
}

// RecomputeRestaurantRating sets the restaurant rating to the mean food
// rating over every rating row that references it.
func RecomputeRestaurantRating(ctx context.Context, q database.Querier, restaurantID int64) (decimal.Decimal, error) {
	var rating decimal.Decimal

	query := `
		UPDATE restaurants
		SET rating = COALESCE((
				SELECT ROUND(AVG(food_rating::numeric), 2)
				FROM ratings
				WHERE restaurant_id = $1
			), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING rating`

	err := q.QueryRowContext(ctx, query, restaurantID).Scan(&rating)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, apperr.NotFound("restaurant", restaurantID)
		}
		return decimal.Zero, fmt.Errorf("recompute restaurant rating: %w", err)
	}

	return rating, nil
}
