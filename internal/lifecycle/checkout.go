package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/cart"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type DeliveryInfo struct {
	Name    string `json:"delivery_name"`
	Phone   string `json:"delivery_phone"`
	Address string `json:"delivery_address"`
}

func (d DeliveryInfo) validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return apperr.Validation("delivery_name", "is required")
	case strings.TrimSpace(d.Phone) == "":
		return apperr.Validation("delivery_phone", "is required")
	case strings.TrimSpace(d.Address) == "":
		return apperr.Validation("delivery_address", "is required")
	}
	return nil
}

type CheckoutResult struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Quote       Quote  `json:"quote"`
}

// AddToCart reads the live menu item and merges quantity into the cart.
func (m *Manager) AddToCart(ctx context.Context, c *cart.Cart, menuItemID int64, quantity int) error {
	item, err := store.GetMenuItem(ctx, m.db, menuItemID)
	if err != nil {
		return apperr.Persistence("add to cart", err)
	}
	return c.Add(*item, quantity)
}

// SetCartQuantity replaces the quantity of one cart line; zero removes it.
func (m *Manager) SetCartQuantity(ctx context.Context, c *cart.Cart, menuItemID int64, quantity int) error {
	item, err := store.GetMenuItem(ctx, m.db, menuItemID)
	if err != nil {
		return apperr.Persistence("set cart quantity", err)
	}
	return c.SetQuantity(*item, quantity)
}

// Preview prices the cart as it stands, using the prices last read into it.
func (m *Manager) Preview(c *cart.Cart) Quote {
	return m.pricing.Quote(c.Subtotal())
}

type pricedLine struct {
	menuItemID int64
	quantity   int
	unitPrice  decimal.Decimal
}

// Checkout turns the cart into a Pending order. Every menu item is locked and
// checked before anything is written, so a stock shortfall leaves no trace.
// The order header, its lines, the stock decrements and the first status log
// entry commit together. The cart is cleared only on success.
func (m *Manager) Checkout(ctx context.Context, actor auth.Role, c *cart.Cart, info DeliveryInfo, paymentMethod string) (*CheckoutResult, error) {
	if c.IsEmpty() {
		return nil, apperr.Validation("cart", "cart is empty")
	}
	if err := info.validate(); err != nil {
		return nil, err
	}
	if !models.ValidPaymentMethod(paymentMethod) {
		return nil, apperr.Validation("payment_method", "must be one of Cash, Card, Wallet")
	}
	switch r := actor.(type) {
	case auth.Customer:
		if r.User != c.CustomerID {
			return nil, apperr.Validation("cart", "cart belongs to another customer")
		}
	case auth.Admin:
	default:
		return nil, fmt.Errorf("%w: only customers place orders", apperr.ErrForbidden)
	}

	lines := c.Lines()
	// Lock in id order so concurrent checkouts sharing dishes cannot deadlock.
	sort.Slice(lines, func(i, j int) bool { return lines[i].Item.ID < lines[j].Item.ID })

	orderTime := m.now()
	var (
		order *models.Order
		quote Quote
	)

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		priced := make([]pricedLine, 0, len(lines))
		subtotal := decimal.Zero

		for _, line := range lines {
			item, err := store.LockMenuItem(ctx, tx, line.Item.ID)
			if err != nil {
				return err
			}
			if item.RestaurantID != c.RestaurantID() {
				return apperr.Validation("menu_item_id", "dish no longer belongs to the cart's restaurant")
			}
			if line.Quantity > item.StockQuantity {
				return &apperr.InsufficientStockError{
					MenuItemID: item.ID,
					Requested:  line.Quantity,
					Available:  item.StockQuantity,
				}
			}

			unitPrice := item.EffectivePrice()
			subtotal = subtotal.Add(unitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
			priced = append(priced, pricedLine{menuItemID: item.ID, quantity: line.Quantity, unitPrice: unitPrice})
		}

		q := m.pricing.Quote(subtotal)
		estimated := orderTime.Add(estimatedDeliveryWindow)

		orderID, err := store.InsertOrder(ctx, tx, store.NewOrder{
			CustomerID:            c.CustomerID,
			RestaurantID:          c.RestaurantID(),
			Subtotal:              q.Subtotal,
			DeliveryFee:           q.DeliveryFee,
			Tax:                   q.Tax,
			DiscountAmount:        q.DiscountAmount,
			TotalAmount:           q.Total,
			PaymentMethod:         paymentMethod,
			DeliveryName:          info.Name,
			DeliveryPhone:         info.Phone,
			DeliveryAddress:       info.Address,
			OrderTime:             orderTime,
			EstimatedDeliveryTime: &estimated,
		})
		if err != nil {
			return err
		}

		orderNumber := store.FormatOrderNumber(orderTime, orderID)
		if err := store.SetOrderNumber(ctx, tx, orderID, orderNumber); err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(priced))
		for _, p := range priced {
			item, err := store.InsertOrderItem(ctx, tx, orderID, p.menuItemID, p.quantity, p.unitPrice)
			if err != nil {
				return err
			}
			if _, err := store.ReserveStock(ctx, tx, p.menuItemID, p.quantity); err != nil {
				return err
			}
			items = append(items, *item)
		}

		if err := store.AppendStatusChange(ctx, tx, orderID, "", models.OrderStatusPending,
			models.ActionPlace, auth.Actor(actor), orderTime); err != nil {
			return err
		}

		quote = q
		order = &models.Order{
			ID:                    orderID,
			CustomerID:            c.CustomerID,
			RestaurantID:          c.RestaurantID(),
			OrderNumber:           orderNumber,
			Subtotal:              q.Subtotal,
			DeliveryFee:           q.DeliveryFee,
			Tax:                   q.Tax,
			DiscountAmount:        q.DiscountAmount,
			TotalAmount:           q.Total,
			DeliveryStatus:        models.OrderStatusPending,
			PaymentMethod:         paymentMethod,
			PaymentStatus:         models.PaymentStatusPending,
			OrderTime:             orderTime,
			EstimatedDeliveryTime: &estimated,
			Items:                 items,
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("checkout", err)
	}

	c.Clear()

	m.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"to":           models.OrderStatusPending,
		"action":       models.ActionPlace,
		"total_amount": quote.Total.StringFixed(2),
	}).Info("order placed")

	event := events.NewOrderEvent(events.TypeOrderPlaced, models.ActionPlace, orderTime)
	event.ToStatus = models.OrderStatusPending
	m.afterCommit(ctx, order, event)

	return &CheckoutResult{OrderID: order.ID, OrderNumber: order.OrderNumber, Quote: quote}, nil
}
