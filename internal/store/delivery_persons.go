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

const deliveryPersonColumns = `id, user_id, status, avg_rating, total_deliveries, total_earnings, created_at, updated_at`

func scanDeliveryPerson(row interface{ Scan(...any) error }, dp *models.DeliveryPerson) error {
	return row.Scan(
		&dp.ID,
		&dp.UserID,
		&dp.Status,
		&dp.AvgRating,
		&dp.TotalDeliveries,
		&dp.TotalEarnings,
		&dp.CreatedAt,
		&dp.UpdatedAt,
	)
}

func CreateDeliveryPerson(ctx context.Context, q database.Querier, userID int64) (*models.DeliveryPerson, error) {
	dp := &models.DeliveryPerson{}

	query := `
		INSERT INTO delivery_persons (user_id, status, avg_rating, total_deliveries, total_earnings, created_at, updated_at)
		VALUES ($1, $2, 0, 0, 0, NOW(), NOW())
		RETURNING ` + deliveryPersonColumns

	if err := scanDeliveryPerson(q.QueryRowContext(ctx, query, userID, models.DeliveryPersonAvailable), dp); err != nil {
		return nil, fmt.Errorf("create delivery person: %w", err)
	}

	return dp, nil
}

func GetDeliveryPerson(ctx context.Context, q database.Querier, id int64) (*models.DeliveryPerson, error) {
	dp := &models.DeliveryPerson{}

	query := `SELECT ` + deliveryPersonColumns + ` FROM delivery_persons WHERE id = $1`

	if err := scanDeliveryPerson(q.QueryRowContext(ctx, query, id), dp); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("delivery person", id)
		}
		return nil, fmt.Errorf("get delivery person: %w", err)
	}

	return dp, nil
}

// LockDeliveryPerson reads a delivery person and holds the row lock until tx ends.
func LockDeliveryPerson(ctx context.Context, tx *sql.Tx, id int64) (*models.DeliveryPerson, error) {
	dp := &models.DeliveryPerson{}

	query := `SELECT ` + deliveryPersonColumns + ` FROM delivery_persons WHERE id = $1 FOR UPDATE`

	if err := scanDeliveryPerson(tx.QueryRowContext(ctx, query, id), dp); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("delivery person", id)
		}
		return nil, fmt.Errorf("lock delivery person %d: %w", id, err)
	}

	return dp, nil
}

func SetDeliveryPersonStatus(ctx context.Context, q database.Querier, id int64, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE delivery_persons SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set delivery person status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound("delivery person", id)
	}
	return nil
}

// RecordCompletedDelivery books a finished delivery against the courier and
// makes them available again.
func RecordCompletedDelivery(ctx context.Context, q database.Querier, id int64, fee decimal.Decimal) error {
	result, err := q.ExecContext(ctx,
		`UPDATE delivery_persons
		 SET total_deliveries = total_deliveries + 1,
		     total_earnings = total_earnings + $1,
		     status = $2,
		     updated_at = NOW()
		 WHERE id = $3`,
		fee, models.DeliveryPersonAvailable, id)
	if err != nil {
		return fmt.Errorf("record completed delivery: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.NotFound("delivery person", id)
	}
	return nil
}

// RecomputeDeliveryPersonRating sets avg_rating to the mean delivery rating
// over every rating row that references the courier.
func RecomputeDeliveryPersonRating(ctx context.Context, q database.Querier, id int64) (decimal.Decimal, error) {
	var rating decimal.Decimal

	err := q.QueryRowContext(ctx,
		`UPDATE delivery_persons
		 SET avg_rating = COALESCE((
				SELECT ROUND(AVG(delivery_rating::numeric), 2)
				FROM ratings
				WHERE delivery_person_id = $1
			), 0),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING avg_rating`, id).Scan(&rating)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, apperr.NotFound("delivery person", id)
		}
		return decimal.Zero, fmt.Errorf("recompute delivery person rating: %w", err)
	}

	return rating, nil
}
