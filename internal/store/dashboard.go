package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/shopspring/decimal"
)

// DashboardScope restricts the counts to one restaurant or one customer.
// The zero value covers every order (admin view).
type DashboardScope struct {
	RestaurantID int64
	CustomerID   int64
}

type DashboardCounts struct {
	TodayOrders  int             `json:"today_orders"`
	PendingCount int             `json:"pending_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

type CourierEarnings struct {
	DeliveryPersonID int64           `json:"delivery_person_id"`
	TotalDeliveries  int             `json:"total_deliveries"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	TodayDeliveries  int             `json:"today_deliveries"`
	TodayEarnings    decimal.Decimal `json:"today_earnings"`
	AvgRating        decimal.Decimal `json:"avg_rating"`
}

// Dashboard counts orders placed since dayStart, orders still pending and the
// revenue of delivered orders.
func Dashboard(ctx context.Context, q database.Querier, scope DashboardScope, dayStart time.Time) (*DashboardCounts, error) {
	counts := &DashboardCounts{}

	err := q.QueryRowContext(ctx,
		`SELECT
		     COUNT(*) FILTER (WHERE order_time >= $1),
		     COUNT(*) FILTER (WHERE delivery_status = $2),
		     COALESCE(SUM(total_amount) FILTER (WHERE delivery_status = $3), 0)
		 FROM orders
		 WHERE ($4::bigint = 0 OR restaurant_id = $4)
		   AND ($5::bigint = 0 OR customer_id = $5)`,
		dayStart, models.OrderStatusPending, models.OrderStatusDelivered,
		scope.RestaurantID, scope.CustomerID).Scan(
		&counts.TodayOrders,
		&counts.PendingCount,
		&counts.TotalRevenue,
	)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	return counts, nil
}

func GetCourierEarnings(ctx context.Context, q database.Querier, deliveryPersonID int64, dayStart time.Time) (*CourierEarnings, error) {
	dp, err := GetDeliveryPerson(ctx, q, deliveryPersonID)
	if err != nil {
		return nil, err
	}

	earnings := &CourierEarnings{
		DeliveryPersonID: dp.ID,
		TotalDeliveries:  dp.TotalDeliveries,
		TotalEarnings:    dp.TotalEarnings,
		AvgRating:        dp.AvgRating,
	}

	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(delivery_fee), 0)
		 FROM orders
		 WHERE delivery_person_id = $1
		   AND delivery_status = $2
		   AND actual_delivery_time >= $3`,
		deliveryPersonID, models.OrderStatusDelivered, dayStart).Scan(
		&earnings.TodayDeliveries,
		&earnings.TodayEarnings,
	)
	if err != nil {
		return nil, fmt.Errorf("courier earnings: %w", err)
	}

	return earnings, nil
}
