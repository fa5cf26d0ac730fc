package lifecycle

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/cache"
	"github.com/safar/go-food-delivery/internal/cart"
	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	menuItemColumnNames = []string{
		"id", "restaurant_id", "name", "price", "discount_price", "stock_quantity",
		"availability", "created_at", "updated_at", "version",
	}
	orderColumnNames = []string{
		"id", "customer_id", "restaurant_id", "delivery_person_id", "order_number",
		"subtotal", "delivery_fee", "tax", "discount_amount", "total_amount",
		"delivery_status", "payment_method", "payment_status",
		"delivery_name", "delivery_phone", "delivery_address", "is_rated",
		"order_time", "estimated_delivery_time", "actual_delivery_time", "assigned_time",
		"updated_at", "version",
	}
	deliveryPersonColumnNames = []string{
		"id", "user_id", "status", "avg_rating", "total_deliveries", "total_earnings", "created_at", "updated_at",
	}
	orderItemColumnNames = []string{
		"id", "order_id", "menu_item_id", "quantity", "unit_price", "total_price", "created_at",
	}
)

var (
	customer   = auth.Customer{User: 7}
	restaurant = auth.Restaurant{User: 2, RestaurantID: 10}
	courier    = auth.Delivery{User: 3, DeliveryPersonID: 5}
)

func testPricing() Pricing {
	return Pricing{
		DeliveryFee:              decimal.NewFromInt(10),
		TaxRate:                  decimal.RequireFromString("0.05"),
		RestoreFlipsAvailability: true,
	}
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, sqlmock.Sqlmock, *events.Broker) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	txOpts := database.SerializableTxOptions()
	txOpts.BaseBackoff = time.Millisecond

	broker := events.NewBroker()
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(broker),
		WithTxOptions(txOpts),
	}
	return NewManager(db, testPricing(), append(base, opts...)...), mock, broker
}

func menuItemRow(id int64, name, price string, stock int) *sqlmock.Rows {
	availability := models.AvailabilityInStock
	if stock <= 0 {
		availability = models.AvailabilityOutOfStock
	}
	return sqlmock.NewRows(menuItemColumnNames).
		AddRow(id, 10, name, price, nil, stock, availability, fixedNow, fixedNow, 1)
}

func orderRow(status string, deliveryPersonID any, rated bool) *sqlmock.Rows {
	return sqlmock.NewRows(orderColumnNames).AddRow(
		42, 7, 10, deliveryPersonID, "ORD-20240501-000042",
		"128.00", "10.00", "6.40", "0", "144.40",
		status, models.PaymentMethodCash, models.PaymentStatusPending,
		"Ann", "555-0100", "1 Main St", rated,
		fixedNow, nil, nil, nil,
		fixedNow, 1,
	)
}

func pizza() models.MenuItem {
	return models.MenuItem{ID: 1, RestaurantID: 10, Name: "Pizza", Price: decimal.RequireFromString("45.00"), StockQuantity: 5}
}

func pasta() models.MenuItem {
	return models.MenuItem{ID: 2, RestaurantID: 10, Name: "Pasta", Price: decimal.RequireFromString("38.00"), StockQuantity: 3}
}

func filledCart(t *testing.T) *cart.Cart {
	c := cart.New(7)
	require.NoError(t, c.Add(pizza(), 2))
	require.NoError(t, c.Add(pasta(), 1))
	return c
}

var delivery = DeliveryInfo{Name: "Ann", Phone: "555-0100", Address: "1 Main St"}

func TestCheckout(t *testing.T) {
	m, mock, broker := newTestManager(t)
	sub := broker.Subscribe(nil)
	defer sub.Close()
	c := filledCart(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM menu_items WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(1)).WillReturnRows(menuItemRow(1, "Pizza", "45.00", 5))
	mock.ExpectQuery("SELECT (.+) FROM menu_items WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(2)).WillReturnRows(menuItemRow(2, "Pasta", "38.00", 3))
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(int64(7), int64(10),
			decimal.RequireFromString("128.00"), decimal.NewFromInt(10), decimal.RequireFromString("6.40"),
			decimal.Zero, decimal.RequireFromString("144.40"),
			models.OrderStatusPending, models.PaymentMethodCash, models.PaymentStatusPending,
			"Ann", "555-0100", "1 Main St", fixedNow, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec("UPDATE orders SET order_number").
		WithArgs("ORD-20240501-000042", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO order_items").
		WithArgs(int64(42), int64(1), 2, decimal.RequireFromString("45.00"), decimal.NewFromInt(90)).
		WillReturnRows(sqlmock.NewRows(orderItemColumnNames).AddRow(1, 42, 1, 2, "45.00", "90.00", fixedNow))
	mock.ExpectQuery("UPDATE menu_items").
		WithArgs(2, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(3))
	mock.ExpectQuery("INSERT INTO order_items").
		WithArgs(int64(42), int64(2), 1, decimal.RequireFromString("38.00"), decimal.RequireFromString("38.00")).
		WillReturnRows(sqlmock.NewRows(orderItemColumnNames).AddRow(2, 42, 2, 1, "38.00", "38.00", fixedNow))
	mock.ExpectQuery("UPDATE menu_items").
		WithArgs(1, int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(2))
	mock.ExpectExec("INSERT INTO order_status_log").
		WithArgs(int64(42), "", models.OrderStatusPending, models.ActionPlace, "customer:7", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := m.Checkout(context.Background(), customer, c, delivery, models.PaymentMethodCash)
	require.NoError(t, err)

	assert.Equal(t, int64(42), res.OrderID)
	assert.Equal(t, "ORD-20240501-000042", res.OrderNumber)
	assert.Equal(t, "144.40", res.Quote.Total.StringFixed(2))
	assert.True(t, c.IsEmpty(), "cart is cleared after checkout")
	assert.NoError(t, mock.ExpectationsWereMet())

	event := <-sub.C
	assert.Equal(t, events.TypeOrderPlaced, event.Type)
	assert.Equal(t, int64(42), event.OrderID)
	assert.Equal(t, models.OrderStatusPending, event.ToStatus)
}

func TestCheckoutChargesListPriceOverZeroDiscount(t *testing.T) {
	m, mock, _ := newTestManager(t)
	c := cart.New(7)
	require.NoError(t, c.Add(pizza(), 2))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM menu_items WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(menuItemColumnNames).
			AddRow(1, 10, "Pizza", "45.00", "0.00", 5, models.AvailabilityInStock, fixedNow, fixedNow, 1))
	mock.ExpectQuery("INSERT INTO orders").
		WithArgs(int64(7), int64(10),
			decimal.RequireFromString("90.00"), decimal.NewFromInt(10), decimal.RequireFromString("4.50"),
			decimal.Zero, decimal.RequireFromString("104.50"),
			models.OrderStatusPending, models.PaymentMethodCash, models.PaymentStatusPending,
			"Ann", "555-0100", "1 Main St", fixedNow, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec("UPDATE orders SET order_number").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO order_items").
		WithArgs(int64(42), int64(1), 2, decimal.RequireFromString("45.00"), decimal.NewFromInt(90)).
		WillReturnRows(sqlmock.NewRows(orderItemColumnNames).AddRow(1, 42, 1, 2, "45.00", "90.00", fixedNow))
	mock.ExpectQuery("UPDATE menu_items").
		WithArgs(2, int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(3))
	mock.ExpectExec("INSERT INTO order_status_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := m.Checkout(context.Background(), customer, c, delivery, models.PaymentMethodCash)
	require.NoError(t, err)

	assert.Equal(t, "90.00", res.Quote.Subtotal.StringFixed(2))
	assert.Equal(t, "104.50", res.Quote.Total.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutInsufficientStockWritesNothing(t *testing.T) {
	m, mock, broker := newTestManager(t)
	sub := broker.Subscribe(nil)
	defer sub.Close()
	c := filledCart(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM menu_items WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(1)).WillReturnRows(menuItemRow(1, "Pizza", "45.00", 1))
	mock.ExpectRollback()

	_, err := m.Checkout(context.Background(), customer, c, delivery, models.PaymentMethodCash)

	var stockErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(1), stockErr.MenuItemID)
	assert.Equal(t, 1, stockErr.Available)
	assert.Len(t, c.Lines(), 2, "cart is untouched")
	assert.Len(t, sub.C, 0, "nothing is published")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutPreconditions(t *testing.T) {
	m, mock, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Checkout(ctx, customer, cart.New(7), delivery, models.PaymentMethodCash)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.Checkout(ctx, customer, filledCart(t), DeliveryInfo{Name: "Ann", Phone: " "}, models.PaymentMethodCash)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "delivery_phone", ve.Field)

	_, err = m.Checkout(ctx, customer, filledCart(t), delivery, "Barter")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.Checkout(ctx, auth.Customer{User: 8}, filledCart(t), delivery, models.PaymentMethodCash)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.Checkout(ctx, restaurant, filledCart(t), delivery, models.PaymentMethodCash)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckoutDriverFailureIsPersistenceError(t *testing.T) {
	m, mock, _ := newTestManager(t)
	c := filledCart(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM menu_items WHERE id = \\$1 FOR UPDATE").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := m.Checkout(context.Background(), customer, c, delivery, models.PaymentMethodCash)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, c.IsEmpty())
}

func TestAddToCart(t *testing.T) {
	m, mock, _ := newTestManager(t)
	c := cart.New(7)

	mock.ExpectQuery("SELECT (.+) FROM menu_items WHERE id = \\$1").
		WithArgs(int64(2)).WillReturnRows(menuItemRow(2, "Pasta", "38.00", 3))
	require.NoError(t, m.AddToCart(context.Background(), c, 2, 3))

	mock.ExpectQuery("SELECT (.+) FROM menu_items WHERE id = \\$1").
		WithArgs(int64(2)).WillReturnRows(menuItemRow(2, "Pasta", "38.00", 3))
	err := m.AddToCart(context.Background(), c, 2, 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	mock.ExpectQuery("FROM menu_items").WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)
	err = m.AddToCart(context.Background(), c, 99, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, "129.70", m.Preview(c).Total.StringFixed(2))
}

func TestConfirmOrder(t *testing.T) {
	m, mock, broker := newTestManager(t)
	sub := broker.Subscribe(nil)
	defer sub.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusPending, nil, false))
	mock.ExpectExec("UPDATE orders\\s+SET delivery_status").
		WithArgs(models.OrderStatusConfirmed, int64(42), models.OrderStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_log").
		WithArgs(int64(42), models.OrderStatusPending, models.OrderStatusConfirmed, models.ActionConfirm, "restaurant:2", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, err := m.ConfirmOrder(context.Background(), restaurant, 42)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, order.DeliveryStatus)
	assert.NoError(t, mock.ExpectationsWereMet())

	event := <-sub.C
	assert.Equal(t, models.OrderStatusPending, event.FromStatus)
	assert.Equal(t, models.OrderStatusConfirmed, event.ToStatus)
	assert.Equal(t, int64(10), event.RestaurantID)
}

func TestCompleteDeliveryOnPendingIsInvalid(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusPending, nil, false))
	mock.ExpectRollback()

	_, err := m.CompleteDelivery(context.Background(), auth.Admin{User: 1}, 42)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.NotErrorIs(t, err, apperr.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidTransitionHidesStatusFromOutsiders(t *testing.T) {
	tests := []struct {
		name  string
		actor auth.Role
		run   func(m *Manager, actor auth.Role) error
	}{
		{"other customer cancels", auth.Customer{User: 8}, func(m *Manager, actor auth.Role) error {
			_, err := m.CancelOrder(context.Background(), actor, 42)
			return err
		}},
		{"other restaurant confirms", auth.Restaurant{User: 9, RestaurantID: 11}, func(m *Manager, actor auth.Role) error {
			_, err := m.ConfirmOrder(context.Background(), actor, 42)
			return err
		}},
		{"courier completes unassigned order", courier, func(m *Manager, actor auth.Role) error {
			_, err := m.CompleteDelivery(context.Background(), actor, 42)
			return err
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, mock, _ := newTestManager(t)
			mock.ExpectBegin()
			mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
				WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusDelivered, nil, false))
			mock.ExpectRollback()

			err := tc.run(m, tc.actor)
			assert.ErrorIs(t, err, apperr.ErrForbidden)
			assert.NotErrorIs(t, err, apperr.ErrInvalidTransition)
			assert.NotContains(t, err.Error(), models.OrderStatusDelivered)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("own order still reports the transition", func(t *testing.T) {
		m, mock, _ := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
			WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusDelivered, nil, false))
		mock.ExpectRollback()

		_, err := m.CancelOrder(context.Background(), customer, 42)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	})
}

func TestTransitionForbiddenForOtherRestaurant(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusPending, nil, false))
	mock.ExpectRollback()

	_, err := m.ConfirmOrder(context.Background(), auth.Restaurant{User: 9, RestaurantID: 11}, 42)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelInPreparingRestoresStock(t *testing.T) {
	for _, flip := range []bool{true, false} {
		m, mock, _ := newTestManager(t)
		m.pricing.RestoreFlipsAvailability = flip

		mock.ExpectBegin()
		mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
			WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusPreparing, nil, false))
		mock.ExpectExec("UPDATE orders\\s+SET delivery_status").
			WithArgs(models.OrderStatusCancelled, int64(42), models.OrderStatusPreparing).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("FROM order_items").
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(orderItemColumnNames).AddRow(1, 42, 1, 2, "45.00", "90.00", fixedNow))
		mock.ExpectQuery("UPDATE menu_items").
			WithArgs(2, int64(1), flip).
			WillReturnRows(sqlmock.NewRows([]string{"stock_quantity"}).AddRow(5))
		mock.ExpectExec("INSERT INTO order_status_log").
			WithArgs(int64(42), models.OrderStatusPreparing, models.OrderStatusCancelled, models.ActionCancel, "customer:7", fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		order, err := m.CancelOrder(context.Background(), customer, 42)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, order.DeliveryStatus)
		assert.Len(t, order.Items, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestRejectAfterPreparingIsInvalid(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusPreparing, nil, false))
	mock.ExpectRollback()

	_, err := m.RejectOrder(context.Background(), restaurant, 42)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestAcceptDelivery(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusOnDelivery, nil, false))
	mock.ExpectQuery("FROM delivery_persons WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(deliveryPersonColumnNames).
			AddRow(5, 3, models.DeliveryPersonAvailable, "0", 0, "0", fixedNow, fixedNow))
	mock.ExpectExec("UPDATE orders\\s+SET delivery_person_id").
		WithArgs(int64(5), fixedNow, int64(42), models.OrderStatusOnDelivery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_persons SET status").
		WithArgs(models.DeliveryPersonOnDelivery, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_log").
		WithArgs(int64(42), models.OrderStatusOnDelivery, models.OrderStatusOnDelivery, models.ActionAcceptDelivery, "delivery:3", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, err := m.AcceptDelivery(context.Background(), courier, 42, 5)
	require.NoError(t, err)
	require.NotNil(t, order.DeliveryPersonID)
	assert.Equal(t, int64(5), *order.DeliveryPersonID)
	assert.Equal(t, fixedNow, *order.AssignedTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptDeliveryRequiresAvailableCourier(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WillReturnRows(orderRow(models.OrderStatusOnDelivery, nil, false))
	mock.ExpectQuery("FROM delivery_persons WHERE id = \\$1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(deliveryPersonColumnNames).
			AddRow(5, 3, models.DeliveryPersonOnDelivery, "0", 0, "0", fixedNow, fixedNow))
	mock.ExpectRollback()

	_, err := m.AcceptDelivery(context.Background(), courier, 42, 5)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.AcceptDelivery(context.Background(), courier, 42, 6)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCompleteDelivery(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusOnDelivery, 5, false))
	mock.ExpectExec("UPDATE orders\\s+SET delivery_status = \\$1, actual_delivery_time").
		WithArgs(models.OrderStatusDelivered, fixedNow, models.PaymentStatusPaid, int64(42), models.OrderStatusOnDelivery).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE delivery_persons\\s+SET total_deliveries").
		WithArgs(decimal.NewFromInt(10), models.DeliveryPersonAvailable, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_status_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	order, err := m.CompleteDelivery(context.Background(), courier, 42)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.DeliveryStatus)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, fixedNow, *order.ActualDeliveryTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRating(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusDelivered, 5, false))
	mock.ExpectQuery("INSERT INTO ratings").
		WithArgs(int64(42), int64(7), int64(10), sqlmock.AnyArg(), 4, 5, "great").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, fixedNow))
	mock.ExpectExec("UPDATE orders SET is_rated = TRUE").
		WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE restaurants").
		WithArgs(int64(10)).WillReturnRows(sqlmock.NewRows([]string{"rating"}).AddRow("4.50"))
	mock.ExpectQuery("UPDATE delivery_persons").
		WithArgs(int64(5)).WillReturnRows(sqlmock.NewRows([]string{"avg_rating"}).AddRow("5.00"))
	mock.ExpectCommit()

	rating, err := m.SubmitRating(context.Background(), customer, 42, 4, 5, " great ")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rating.ID)
	require.NotNil(t, rating.DeliveryPersonID)
	assert.Equal(t, int64(5), *rating.DeliveryPersonID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitRatingRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("out of range", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		_, err := m.SubmitRating(ctx, customer, 42, 0, 5, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
		_, err = m.SubmitRating(ctx, customer, 42, 5, 6, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("second rating", func(t *testing.T) {
		m, mock, _ := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(orderRow(models.OrderStatusDelivered, 5, true))
		mock.ExpectRollback()

		_, err := m.SubmitRating(ctx, customer, 42, 4, 4, "")
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not delivered", func(t *testing.T) {
		m, mock, _ := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(orderRow(models.OrderStatusPreparing, nil, false))
		mock.ExpectRollback()

		_, err := m.SubmitRating(ctx, customer, 42, 4, 4, "")
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	})

	t.Run("someone else's undelivered order", func(t *testing.T) {
		m, mock, _ := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(orderRow(models.OrderStatusPreparing, nil, false))
		mock.ExpectRollback()

		_, err := m.SubmitRating(ctx, auth.Customer{User: 8}, 42, 4, 4, "")
		assert.ErrorIs(t, err, apperr.ErrForbidden)
		assert.NotContains(t, err.Error(), models.OrderStatusPreparing)
	})

	t.Run("someone else's order", func(t *testing.T) {
		m, mock, _ := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM orders WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(orderRow(models.OrderStatusDelivered, 5, false))
		mock.ExpectRollback()

		_, err := m.SubmitRating(ctx, auth.Customer{User: 8}, 42, 4, 4, "")
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})
}

func TestToggleDeliveryPersonAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("available to assigned", func(t *testing.T) {
		m, mock, _ := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM delivery_persons WHERE id = \\$1 FOR UPDATE").
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(deliveryPersonColumnNames).
				AddRow(5, 3, models.DeliveryPersonAvailable, "0", 0, "0", fixedNow, fixedNow))
		mock.ExpectExec("UPDATE delivery_persons SET status").
			WithArgs(models.DeliveryPersonAssigned, int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		status, err := m.ToggleDeliveryPersonAvailability(ctx, courier, 5)
		require.NoError(t, err)
		assert.Equal(t, models.DeliveryPersonAssigned, status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("on delivery is rejected", func(t *testing.T) {
		m, mock, _ := newTestManager(t)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM delivery_persons WHERE id = \\$1 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(deliveryPersonColumnNames).
				AddRow(5, 3, models.DeliveryPersonOnDelivery, "0", 0, "0", fixedNow, fixedNow))
		mock.ExpectRollback()

		_, err := m.ToggleDeliveryPersonAvailability(ctx, courier, 5)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("other courier", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		_, err := m.ToggleDeliveryPersonAvailability(ctx, courier, 6)
		assert.ErrorIs(t, err, apperr.ErrForbidden)
	})
}

func TestDashboardCacheAside(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m, mock, _ := newTestManager(t, WithCache(cache.NewRedisCache(client, time.Minute)))
	ctx := context.Background()

	mock.ExpectQuery("FROM orders").
		WithArgs(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), models.OrderStatusPending, models.OrderStatusDelivered, int64(10), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"today", "pending", "revenue"}).AddRow(3, 1, "144.40"))

	first, err := m.Dashboard(ctx, restaurant)
	require.NoError(t, err)
	second, err := m.Dashboard(ctx, restaurant)
	require.NoError(t, err)

	assert.Equal(t, first.TodayOrders, second.TodayOrders)
	assert.True(t, second.TotalRevenue.Equal(decimal.RequireFromString("144.40")))
	assert.NoError(t, mock.ExpectationsWereMet(), "second call is served from cache")

	_, err = m.Dashboard(ctx, courier)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRatingSummaryReadsRatingMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	redisCache := cache.NewRedisCache(client, time.Minute)
	m, mock, _ := newTestManager(t, WithCache(redisCache))
	ctx := context.Background()

	distribution := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"food_rating", "count"}).AddRow(4, 2).AddRow(5, 1)
	}

	mock.ExpectQuery("FROM restaurants").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_user_id", "name", "rating", "created_at", "updated_at"}).
			AddRow(10, 2, "Roma", "4.33", fixedNow, fixedNow))
	mock.ExpectQuery("FROM ratings").WithArgs(int64(10)).WillReturnRows(distribution())

	first, err := m.RatingSummary(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "4.33", first.Average.StringFixed(2))
	assert.Equal(t, 3, first.Count)

	avg, ok, err := redisCache.RestaurantRating(ctx, 10)
	require.NoError(t, err)
	require.True(t, ok, "a miss refills the mirror")
	assert.Equal(t, "4.33", avg.StringFixed(2))

	require.NoError(t, redisCache.MirrorRestaurantRating(ctx, 10, decimal.RequireFromString("4.50"), 4))
	mock.ExpectQuery("FROM ratings").WithArgs(int64(10)).WillReturnRows(distribution())

	second, err := m.RatingSummary(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "4.50", second.Average.StringFixed(2), "average comes from the mirror")
	assert.Equal(t, 2, second.Distribution["4"])
	assert.NoError(t, mock.ExpectationsWereMet(), "a hit skips the restaurant lookup")
}

func TestRatingSummaryUnknownRestaurant(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectQuery("FROM restaurants").
		WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

	_, err := m.RatingSummary(context.Background(), 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListOrdersScopesByRole(t *testing.T) {
	tests := []struct {
		name   string
		role   auth.Role
		in     store.OrderFilter
		expect store.OrderFilter
	}{
		{"customer", customer, store.OrderFilter{CustomerID: 99}, store.OrderFilter{CustomerID: 7}},
		{"restaurant", restaurant, store.OrderFilter{Statuses: []string{"Pending"}},
			store.OrderFilter{Statuses: []string{"Pending"}, RestaurantID: 10}},
		{"courier pool", courier, store.OrderFilter{Unassigned: true},
			store.OrderFilter{Unassigned: true, Statuses: []string{models.OrderStatusOnDelivery}}},
		{"courier own", courier, store.OrderFilter{}, store.OrderFilter{DeliveryPersonID: 5}},
		{"admin", auth.Admin{User: 1}, store.OrderFilter{RestaurantID: 3}, store.OrderFilter{RestaurantID: 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := scopeFilter(tc.role, tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}

	_, err := scopeFilter(nil, store.OrderFilter{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGetOrderHidesOthers(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectQuery("SELECT (.+) FROM orders WHERE id = \\$1").
		WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusPending, nil, false))
	mock.ExpectQuery("FROM order_items").
		WithArgs(int64(42)).WillReturnRows(sqlmock.NewRows(orderItemColumnNames))

	_, err := m.GetOrder(context.Background(), auth.Customer{User: 8}, 42)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestListUsersIsAdminOnly(t *testing.T) {
	m, mock, _ := newTestManager(t)

	_, err := m.ListUsers(context.Background(), auth.Customer{User: 7}, "", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").
		WithArgs(models.RoleDelivery).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs(models.RoleDelivery, int64(maxPageSize), int64(0)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "created_at", "updated_at", "version"}).
			AddRow(3, "courier@example.com", "Courier", models.RoleDelivery, fixedNow, fixedNow, 1))

	page, err := m.ListUsers(context.Background(), auth.Admin{User: 1}, models.RoleDelivery, 0, 500)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxPageSize, page.PageSize)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentUserNotFound(t *testing.T) {
	m, mock, _ := newTestManager(t)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id = \\$1").
		WithArgs(int64(7)).WillReturnError(sql.ErrNoRows)

	_, err := m.CurrentUser(context.Background(), auth.Customer{User: 7})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
