// Package cart holds the transient, per-customer selection of dishes that
// checkout turns into an order. A Cart is a plain value owned by its caller;
// nothing here touches the database.
package cart

import (
	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/shopspring/decimal"
)

// Line is one dish in the cart. Item is the menu item as last read from the
// store and is only used for display and preview totals; checkout re-reads
// the live row.
type Line struct {
	Item     models.MenuItem `json:"item"`
	Quantity int             `json:"quantity"`
}

type Cart struct {
	CustomerID int64
	lines      []Line
}

func New(customerID int64) *Cart {
	return &Cart{CustomerID: customerID}
}

// Add merges quantity into the line for item, or appends a new line. It fails
// without changing the cart when the combined quantity exceeds the item's
// stock or when the item belongs to another restaurant than the cart.
func (c *Cart) Add(item models.MenuItem, quantity int) error {
	if quantity <= 0 {
		return apperr.Validation("quantity", "must be > 0")
	}
	if len(c.lines) > 0 && c.lines[0].Item.RestaurantID != item.RestaurantID {
		return apperr.Validation("menu_item_id", "cart already holds dishes from another restaurant")
	}

	idx := c.index(item.ID)
	existing := 0
	if idx >= 0 {
		existing = c.lines[idx].Quantity
	}

	if existing+quantity > item.StockQuantity {
		return &apperr.InsufficientStockError{
			MenuItemID: item.ID,
			Requested:  existing + quantity,
			Available:  item.StockQuantity,
		}
	}

	if idx >= 0 {
		c.lines[idx].Item = item
		c.lines[idx].Quantity += quantity
		return nil
	}
	c.lines = append(c.lines, Line{Item: item, Quantity: quantity})
	return nil
}

// SetQuantity replaces a line's quantity; zero removes the line.
func (c *Cart) SetQuantity(item models.MenuItem, quantity int) error {
	if quantity < 0 {
		return apperr.Validation("quantity", "must not be negative")
	}
	idx := c.index(item.ID)
	if idx < 0 {
		if quantity == 0 {
			return nil
		}
		return c.Add(item, quantity)
	}
	if quantity == 0 {
		c.Remove(item.ID)
		return nil
	}
	if quantity > item.StockQuantity {
		return &apperr.InsufficientStockError{
			MenuItemID: item.ID,
			Requested:  quantity,
			Available:  item.StockQuantity,
		}
	}
	c.lines[idx].Item = item
	c.lines[idx].Quantity = quantity
	return nil
}

func (c *Cart) Remove(menuItemID int64) bool {
	idx := c.index(menuItemID)
	if idx < 0 {
		return false
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	return true
}

func (c *Cart) Clear() { c.lines = nil }

func (c *Cart) IsEmpty() bool { return len(c.lines) == 0 }

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// RestaurantID is zero for an empty cart.
func (c *Cart) RestaurantID() int64 {
	if len(c.lines) == 0 {
		return 0
	}
	return c.lines[0].Item.RestaurantID
}

// Subtotal prices every line at its effective price as last read.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Item.EffectivePrice().Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

func (c *Cart) index(menuItemID int64) int {
	for i, line := range c.lines {
		if line.Item.ID == menuItemID {
			return i
		}
	}
	return -1
}
