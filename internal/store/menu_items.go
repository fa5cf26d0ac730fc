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

// ErrOptimisticLockFailed is returned when a manual edit raced another update.
var ErrOptimisticLockFailed = apperr.Validation("version", "menu item was modified concurrently, reload and retry")

const menuItemColumns = `id, restaurant_id, name, price, discount_price, stock_quantity, availability, created_at, updated_at, version`

func scanMenuItem(row interface{ Scan(...any) error }, item *models.MenuItem) error {
	return row.Scan(
		&item.ID,
		&item.RestaurantID,
		&item.Name,
		&item.Price,
		&item.DiscountPrice,
		&item.StockQuantity,
		&item.Availability,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.Version,
	)
}

func availabilityFor(stock int) string {
	if stock > 0 {
		return models.AvailabilityInStock
	}
	return models.AvailabilityOutOfStock
}

func CreateMenuItem(ctx context.Context, q database.Querier, restaurantID int64, name string, price decimal.Decimal, discountPrice decimal.NullDecimal, stock int) (*models.MenuItem, error) {
	if stock < 0 {
		return nil, apperr.Validation("stock_quantity", "must not be negative")
	}

	item := &models.MenuItem{}

	query := `
		INSERT INTO menu_items (restaurant_id, name, price, discount_price, stock_quantity, availability, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + menuItemColumns

	row := q.QueryRowContext(ctx, query, restaurantID, name, price, discountPrice, stock, availabilityFor(stock))
	if err := scanMenuItem(row, item); err != nil {
		return nil, fmt.Errorf("create menu item: %w", err)
	}

	return item, nil
}

func GetMenuItem(ctx context.Context, q database.Querier, id int64) (*models.MenuItem, error) {
	item := &models.MenuItem{}

	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1`

	if err := scanMenuItem(q.QueryRowContext(ctx, query, id), item); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("menu item", id)
		}
		return nil, fmt.Errorf("get menu item: %w", err)
	}

	return item, nil
}

// LockMenuItem reads a menu item and holds its row lock until tx ends.
func LockMenuItem(ctx context.Context, tx *sql.Tx, id int64) (*models.MenuItem, error) {
	item := &models.MenuItem{}

	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1 FOR UPDATE`

	if err := scanMenuItem(tx.QueryRowContext(ctx, query, id), item); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("menu item", id)
		}
		return nil, fmt.Errorf("lock menu item %d: %w", id, err)
	}

	return item, nil
}

func ListMenuItems(ctx context.Context, q database.Querier, restaurantID int64) ([]models.MenuItem, error) {
	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE restaurant_id = $1 ORDER BY name, id`

	rows, err := q.QueryContext(ctx, query, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}
	defer rows.Close()

	var items []models.MenuItem
	for rows.Next() {
		var item models.MenuItem
		if err := scanMenuItem(rows, &item); err != nil {
			return nil, fmt.Errorf("scan menu item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// ReserveStock is the ledger's decrement. The update only applies while
// enough stock remains, so two checkouts racing for the last units cannot
// both succeed. Availability flips to "Out of Stock" when stock reaches zero
// and is otherwise left as it was.
func ReserveStock(ctx context.Context, q database.Querier, menuItemID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, apperr.Validation("quantity", "must be > 0")
	}

	var newStock int
	err := q.QueryRowContext(ctx,
		`UPDATE menu_items
		 SET stock_quantity = stock_quantity - $1,
		     availability = CASE WHEN stock_quantity - $1 <= 0 THEN 'Out of Stock' ELSE availability END,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND stock_quantity >= $1
		 RETURNING stock_quantity`,
		quantity, menuItemID).Scan(&newStock)
	if err == nil {
		return newStock, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("reserve stock: %w", err)
	}

	var available int
	err = q.QueryRowContext(ctx,
		`SELECT stock_quantity FROM menu_items WHERE id = $1`, menuItemID).Scan(&available)
	if err == sql.ErrNoRows {
		return 0, apperr.NotFound("menu item", menuItemID)
	}
	if err != nil {
		return 0, fmt.Errorf("read stock: %w", err)
	}

	return 0, &apperr.InsufficientStockError{
		MenuItemID: menuItemID,
		Requested:  quantity,
		Available:  available,
	}
}

// RestoreStock is the ledger's compensating increment for a cancelled line.
// flipAvailability marks the item "In Stock" again once stock is positive;
// without it availability is left untouched.
func RestoreStock(ctx context.Context, q database.Querier, menuItemID int64, quantity int, flipAvailability bool) (int, error) {
	if quantity <= 0 {
		return 0, apperr.Validation("quantity", "must be > 0")
	}

	var newStock int
	err := q.QueryRowContext(ctx,
		`UPDATE menu_items
		 SET stock_quantity = stock_quantity + $1,
		     availability = CASE WHEN $3 AND stock_quantity + $1 > 0 THEN 'In Stock' ELSE availability END,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		 RETURNING stock_quantity`,
		quantity, menuItemID, flipAvailability).Scan(&newStock)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.NotFound("menu item", menuItemID)
		}
		return 0, fmt.Errorf("restore stock: %w", err)
	}

	return newStock, nil
}

// SetMenuItemStock is the restaurant's manual stock edit. It is guarded by
// the row version so a concurrent ledger update is never overwritten.
func SetMenuItemStock(ctx context.Context, q database.Querier, menuItemID int64, stock int, version int) (*models.MenuItem, error) {
	if stock < 0 {
		return nil, apperr.Validation("stock_quantity", "must not be negative")
	}

	item := &models.MenuItem{}
	query := `
		UPDATE menu_items
		SET stock_quantity = $1, availability = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
		RETURNING ` + menuItemColumns

	err := scanMenuItem(q.QueryRowContext(ctx, query, stock, availabilityFor(stock), menuItemID, version), item)
	if err == nil {
		return item, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("set menu item stock: %w", err)
	}

	if _, getErr := GetMenuItem(ctx, q, menuItemID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrOptimisticLockFailed
}
