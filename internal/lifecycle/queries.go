package lifecycle

import (
	"context"
	"fmt"

	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// scopeFilter narrows a requested filter to what role may see. Couriers get
// either the unassigned pool or their own orders.
func scopeFilter(role auth.Role, filter store.OrderFilter) (store.OrderFilter, error) {
	switch r := role.(type) {
	case auth.Admin:
	case auth.Customer:
		filter.CustomerID = r.User
	case auth.Restaurant:
		filter.RestaurantID = r.RestaurantID
	case auth.Delivery:
		if filter.Unassigned {
			filter.Statuses = []string{models.OrderStatusOnDelivery}
			filter.DeliveryPersonID = 0
		} else {
			filter.DeliveryPersonID = r.DeliveryPersonID
		}
	default:
		return filter, fmt.Errorf("%w: sign in to list orders", apperr.ErrForbidden)
	}
	return filter, nil
}

func (m *Manager) ListOrders(ctx context.Context, actor auth.Role, filter store.OrderFilter, cursor string, limit int) (*store.CursorPage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	scoped, err := scopeFilter(actor, filter)
	if err != nil {
		return nil, err
	}

	page, err := store.ListOrdersCursor(ctx, m.db, scoped, cursor, limit)
	if err != nil {
		return nil, apperr.Persistence("list orders", err)
	}
	return page, nil
}

// GetOrder returns the order with its lines.
func (m *Manager) GetOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, m.db, orderID)
	if err != nil {
		return nil, apperr.Persistence("get order", err)
	}
	if !auth.CanViewOrder(actor, order) {
		return nil, fmt.Errorf("%w: order %d", apperr.ErrForbidden, orderID)
	}
	return order, nil
}

func (m *Manager) OrderHistory(ctx context.Context, actor auth.Role, orderID int64) ([]models.StatusChange, error) {
	if _, err := m.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	changes, err := store.ListStatusChanges(ctx, m.db, orderID)
	if err != nil {
		return nil, apperr.Persistence("order history", err)
	}
	return changes, nil
}

// Dashboard answers today's orders, pending count and delivered revenue for
// the actor's scope, cache-aside when a cache is configured.
func (m *Manager) Dashboard(ctx context.Context, actor auth.Role) (*store.DashboardCounts, error) {
	var scope store.DashboardScope
	switch r := actor.(type) {
	case auth.Admin:
	case auth.Customer:
		scope.CustomerID = r.User
	case auth.Restaurant:
		scope.RestaurantID = r.RestaurantID
	default:
		return nil, fmt.Errorf("%w: no dashboard for this role", apperr.ErrForbidden)
	}

	day := m.dayStart()
	if m.cache != nil {
		counts, ok, err := m.cache.Dashboard(ctx, scope, day)
		if err != nil {
			m.log.WithError(err).Warn("read dashboard cache")
		} else if ok {
			return counts, nil
		}
	}

	counts, err := store.Dashboard(ctx, m.db, scope, day)
	if err != nil {
		return nil, apperr.Persistence("dashboard", err)
	}

	if m.cache != nil {
		if err := m.cache.StoreDashboard(ctx, scope, day, counts); err != nil {
			m.log.WithError(err).Warn("write dashboard cache")
		}
	}
	return counts, nil
}

// RatingSummary reports the stored average with the food rating
// distribution. The average is read from the mirror first; a miss loads the
// restaurant row and refills the mirror.
func (m *Manager) RatingSummary(ctx context.Context, restaurantID int64) (*store.RatingSummary, error) {
	avg, cached := m.cachedRestaurantRating(ctx, restaurantID)
	if !cached {
		r, err := store.GetRestaurant(ctx, m.db, restaurantID)
		if err != nil {
			return nil, apperr.Persistence("rating summary", err)
		}
		avg = r.Rating
	}

	summary, err := store.GetRatingSummary(ctx, m.db, restaurantID)
	if err != nil {
		return nil, apperr.Persistence("rating summary", err)
	}
	summary.Average = avg

	if !cached && m.cache != nil {
		if err := m.cache.MirrorRestaurantRating(ctx, restaurantID, avg, summary.Count); err != nil {
			m.log.WithError(err).WithField("restaurant_id", restaurantID).Warn("refill rating mirror")
		}
	}
	return summary, nil
}

func (m *Manager) cachedRestaurantRating(ctx context.Context, restaurantID int64) (decimal.Decimal, bool) {
	if m.cache == nil {
		return decimal.Zero, false
	}
	avg, ok, err := m.cache.RestaurantRating(ctx, restaurantID)
	if err != nil {
		m.log.WithError(err).WithField("restaurant_id", restaurantID).Warn("read rating mirror")
		return decimal.Zero, false
	}
	return avg, ok
}

func (m *Manager) CourierEarnings(ctx context.Context, actor auth.Role, deliveryPersonID int64) (*store.CourierEarnings, error) {
	if err := auth.AuthorizeCourier(actor, deliveryPersonID); err != nil {
		return nil, err
	}
	earnings, err := store.GetCourierEarnings(ctx, m.db, deliveryPersonID, m.dayStart())
	if err != nil {
		return nil, apperr.Persistence("courier earnings", err)
	}
	return earnings, nil
}

func (m *Manager) ListMenu(ctx context.Context, restaurantID int64) ([]models.MenuItem, error) {
	items, err := store.ListMenuItems(ctx, m.db, restaurantID)
	if err != nil {
		return nil, apperr.Persistence("list menu", err)
	}
	return items, nil
}

// SetMenuItemStock is the restaurant's manual stock edit. Availability
// follows the new stock.
func (m *Manager) SetMenuItemStock(ctx context.Context, actor auth.Role, menuItemID int64, stock, version int) (*models.MenuItem, error) {
	item, err := store.GetMenuItem(ctx, m.db, menuItemID)
	if err != nil {
		return nil, apperr.Persistence("set stock", err)
	}
	if err := auth.AuthorizeRestaurant(actor, item.RestaurantID); err != nil {
		return nil, err
	}

	updated, err := store.SetMenuItemStock(ctx, m.db, menuItemID, stock, version)
	if err != nil {
		return nil, apperr.Persistence("set stock", err)
	}

	m.log.WithFields(logrus.Fields{
		"menu_item_id": updated.ID,
		"stock":        updated.StockQuantity,
		"availability": updated.Availability,
	}).Info("menu item stock edited")

	return updated, nil
}

// OrderRating returns the rating left on an order, visible to whoever can see
// the order.
func (m *Manager) OrderRating(ctx context.Context, actor auth.Role, orderID int64) (*models.Rating, error) {
	if _, err := m.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	rating, err := store.GetRatingByOrder(ctx, m.db, orderID)
	if err != nil {
		return nil, apperr.Persistence("get rating", err)
	}
	return rating, nil
}

// CurrentUser loads the account behind the caller's token.
func (m *Manager) CurrentUser(ctx context.Context, actor auth.Role) (*models.User, error) {
	if actor == nil {
		return nil, fmt.Errorf("%w: sign in first", apperr.ErrForbidden)
	}
	user, err := store.GetUser(ctx, m.db, actor.UserID())
	if err != nil {
		return nil, apperr.Persistence("current user", err)
	}
	return user, nil
}

// ListUsers pages through accounts, optionally of one role. Admin only.
func (m *Manager) ListUsers(ctx context.Context, actor auth.Role, role string, page, pageSize int) (*store.OffsetPage, error) {
	if _, ok := actor.(auth.Admin); !ok {
		return nil, fmt.Errorf("%w: only admins list users", apperr.ErrForbidden)
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	users, err := store.ListUsers(ctx, m.db, role, page, pageSize)
	if err != nil {
		return nil, apperr.Persistence("list users", err)
	}
	return users, nil
}
