package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/models"
)

func AppendStatusChange(ctx context.Context, q database.Querier, orderID int64, from, to, action, actor string, at time.Time) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO order_status_log (order_id, from_status, to_status, action, actor, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, from, to, action, actor, at)
	if err != nil {
		return fmt.Errorf("append status change: %w", err)
	}
	return nil
}

func ListStatusChanges(ctx context.Context, q database.Querier, orderID int64) ([]models.StatusChange, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, from_status, to_status, action, actor, changed_at
		 FROM order_status_log
		 WHERE order_id = $1
		 ORDER BY changed_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	defer rows.Close()

	changes := []models.StatusChange{}
	for rows.Next() {
		var c models.StatusChange
		if err := rows.Scan(&c.ID, &c.OrderID, &c.FromStatus, &c.ToStatus, &c.Action, &c.Actor, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		changes = append(changes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return changes, nil
}
