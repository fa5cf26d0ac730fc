package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, customer_id, restaurant_id, delivery_person_id, order_number,
	subtotal, delivery_fee, tax, discount_amount, total_amount,
	delivery_status, payment_method, payment_status,
	delivery_name, delivery_phone, delivery_address, is_rated,
	order_time, estimated_delivery_time, actual_delivery_time, assigned_time,
	updated_at, version`

// NewOrder is the header row written at checkout.
type NewOrder struct {
	CustomerID            int64
	RestaurantID          int64
	Subtotal              decimal.Decimal
	DeliveryFee           decimal.Decimal
	Tax                   decimal.Decimal
	DiscountAmount        decimal.Decimal
	TotalAmount           decimal.Decimal
	PaymentMethod         string
	DeliveryName          string
	DeliveryPhone         string
	DeliveryAddress       string
	OrderTime             time.Time
	EstimatedDeliveryTime *time.Time
}

// OrderFilter narrows ListOrders. Zero values mean "any".
type OrderFilter struct {
	Statuses         []string
	CustomerID       int64
	RestaurantID     int64
	DeliveryPersonID int64
	// Unassigned keeps only orders with no delivery person.
	Unassigned bool
}

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	var (
		deliveryPersonID sql.NullInt64
		orderNumber      sql.NullString
		estimated        sql.NullTime
		actual           sql.NullTime
		assigned         sql.NullTime
	)

	err := row.Scan(
		&order.ID,
		&order.CustomerID,
		&order.RestaurantID,
		&deliveryPersonID,
		&orderNumber,
		&order.Subtotal,
		&order.DeliveryFee,
		&order.Tax,
		&order.DiscountAmount,
		&order.TotalAmount,
		&order.DeliveryStatus,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.DeliveryName,
		&order.DeliveryPhone,
		&order.DeliveryAddress,
		&order.IsRated,
		&order.OrderTime,
		&estimated,
		&actual,
		&assigned,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}

	if deliveryPersonID.Valid {
		id := deliveryPersonID.Int64
		order.DeliveryPersonID = &id
	}
	order.OrderNumber = orderNumber.String
	order.EstimatedDeliveryTime = nullTime(estimated)
	order.ActualDeliveryTime = nullTime(actual)
	order.AssignedTime = nullTime(assigned)
	return nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// FormatOrderNumber renders the human-readable number assigned right after
// the order header is inserted, e.g. ORD-20261017-000042.
func FormatOrderNumber(orderTime time.Time, id int64) string {
	return fmt.Sprintf("ORD-%s-%06d", orderTime.UTC().Format("20060102"), id)
}

func InsertOrder(ctx context.Context, q database.Querier, o NewOrder) (int64, error) {
	var estimated sql.NullTime
	if o.EstimatedDeliveryTime != nil {
		estimated = sql.NullTime{Time: *o.EstimatedDeliveryTime, Valid: true}
	}

	var orderID int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO orders (customer_id, restaurant_id, subtotal, delivery_fee, tax, discount_amount, total_amount,
		                     delivery_status, payment_method, payment_status,
		                     delivery_name, delivery_phone, delivery_address,
		                     order_time, estimated_delivery_time, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), 1)
		 RETURNING id`,
		o.CustomerID, o.RestaurantID, o.Subtotal, o.DeliveryFee, o.Tax, o.DiscountAmount, o.TotalAmount,
		models.OrderStatusPending, o.PaymentMethod, models.PaymentStatusPending,
		o.DeliveryName, o.DeliveryPhone, o.DeliveryAddress,
		o.OrderTime, estimated).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}

	return orderID, nil
}

func SetOrderNumber(ctx context.Context, q database.Querier, orderID int64, orderNumber string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE orders SET order_number = $1 WHERE id = $2`, orderNumber, orderID)
	if err != nil {
		return fmt.Errorf("set order number: %w", err)
	}
	return nil
}

// InsertOrderItem stores a line with the unit price captured at checkout.
func InsertOrderItem(ctx context.Context, q database.Querier, orderID, menuItemID int64, quantity int, unitPrice decimal.Decimal) (*models.OrderItem, error) {
	item := &models.OrderItem{}
	totalPrice := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))

	err := q.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, menu_item_id, quantity, unit_price, total_price, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, order_id, menu_item_id, quantity, unit_price, total_price, created_at`,
		orderID, menuItemID, quantity, unitPrice, totalPrice).Scan(
		&item.ID,
		&item.OrderID,
		&item.MenuItemID,
		&item.Quantity,
		&item.UnitPrice,
		&item.TotalPrice,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create order item: %w", err)
	}

	return item, nil
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := ListOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// LockOrder reads an order header and holds its row lock until tx ends.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	if err := scanOrder(tx.QueryRowContext(ctx, query, id), order); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("order", id)
		}
		return nil, fmt.Errorf("lock order %d: %w", id, err)
	}

	return order, nil
}

func ListOrderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, menu_item_id, quantity, unit_price, total_price, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.MenuItemID,
			&item.Quantity,
			&item.UnitPrice,
			&item.TotalPrice,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateOrderStatus moves an order from one status to another. It only
// applies while the order is still in from.
func UpdateOrderStatus(ctx context.Context, q database.Querier, orderID int64, from, to string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET delivery_status = $1, updated_at = NOW(), version = version + 1
		 WHERE id = $2 AND delivery_status = $3`,
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectOneRow(result, "update order status", orderID)
}

// AssignDeliveryPerson claims an unassigned order that is out for delivery.
func AssignDeliveryPerson(ctx context.Context, q database.Querier, orderID, deliveryPersonID int64, at time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET delivery_person_id = $1, assigned_time = $2, updated_at = NOW(), version = version + 1
		 WHERE id = $3 AND delivery_status = $4 AND delivery_person_id IS NULL`,
		deliveryPersonID, at, orderID, models.OrderStatusOnDelivery)
	if err != nil {
		return fmt.Errorf("assign delivery person: %w", err)
	}
	return expectOneRow(result, "assign delivery person", orderID)
}

// CompleteOrder marks an assigned order delivered. Payment is settled on
// delivery regardless of the payment method.
func CompleteOrder(ctx context.Context, q database.Querier, orderID int64, at time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET delivery_status = $1, actual_delivery_time = $2, payment_status = $3,
		     updated_at = NOW(), version = version + 1
		 WHERE id = $4 AND delivery_status = $5 AND delivery_person_id IS NOT NULL`,
		models.OrderStatusDelivered, at, models.PaymentStatusPaid, orderID, models.OrderStatusOnDelivery)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	return expectOneRow(result, "complete order", orderID)
}

// MarkOrderRated flips is_rated once. A second call reports a validation
// error because the order already carries a rating.
func MarkOrderRated(ctx context.Context, q database.Querier, orderID int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders SET is_rated = TRUE, updated_at = NOW(), version = version + 1
		 WHERE id = $1 AND is_rated = FALSE`, orderID)
	if err != nil {
		return fmt.Errorf("mark order rated: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperr.Validation("order", "order has already been rated")
	}
	return nil
}

func expectOneRow(result sql.Result, op string, orderID int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: order %d changed concurrently", op, orderID)
	}
	return nil
}

func ListOrdersCursor(ctx context.Context, q database.Querier, filter OrderFilter, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, apperr.Validation("cursor", "malformed cursor")
	}

	conditions := []string{"(order_time, id) < ($1, $2)"}
	args := []any{cursorData.OrderTime, cursorData.ID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = arg(status)
		}
		conditions = append(conditions, "delivery_status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.CustomerID != 0 {
		conditions = append(conditions, "customer_id = "+arg(filter.CustomerID))
	}
	if filter.RestaurantID != 0 {
		conditions = append(conditions, "restaurant_id = "+arg(filter.RestaurantID))
	}
	if filter.DeliveryPersonID != 0 {
		conditions = append(conditions, "delivery_person_id = "+arg(filter.DeliveryPersonID))
	}
	if filter.Unassigned {
		conditions = append(conditions, "delivery_person_id IS NULL")
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY order_time DESC, id DESC
		LIMIT ` + arg(limit+1)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			OrderTime: last.OrderTime,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
