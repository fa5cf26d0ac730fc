// Package lifecycle is the order lifecycle core: it turns carts into orders,
// drives orders through their statuses and books ratings. Every mutation runs
// in one serializable transaction; events and cache updates follow only after
// commit.
package lifecycle

import (
	"context"
	"database/sql"
	"time"

	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/logging"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	estimatedDeliveryWindow = 45 * time.Minute
	publishTimeout          = 5 * time.Second
)

// Cache is the optional read-side mirror. *cache.RedisCache satisfies it.
type Cache interface {
	MirrorRestaurantRating(ctx context.Context, restaurantID int64, avg decimal.Decimal, count int) error
	RestaurantRating(ctx context.Context, restaurantID int64) (decimal.Decimal, bool, error)
	MirrorCourierRating(ctx context.Context, deliveryPersonID int64, avg decimal.Decimal) error
	Dashboard(ctx context.Context, scope store.DashboardScope, day time.Time) (*store.DashboardCounts, bool, error)
	StoreDashboard(ctx context.Context, scope store.DashboardScope, day time.Time, counts *store.DashboardCounts) error
	InvalidateDashboards(ctx context.Context, restaurantID, customerID int64, day time.Time) error
}

type Manager struct {
	db        *sql.DB
	pricing   Pricing
	publisher events.Publisher
	cache     Cache
	now       func() time.Time
	log       *logrus.Entry
	txOpts    database.TxOptions
}

type Option func(*Manager)

func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithCache(c Cache) Option {
	return func(m *Manager) { m.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(log *logrus.Entry) Option {
	return func(m *Manager) { m.log = log }
}

func WithTxOptions(opts database.TxOptions) Option {
	return func(m *Manager) { m.txOpts = opts }
}

func NewManager(db *sql.DB, pricing Pricing, opts ...Option) *Manager {
	m := &Manager{
		db:        db,
		pricing:   pricing,
		publisher: events.Nop{},
		now:       time.Now,
		log:       logging.Discard(),
		txOpts:    database.SerializableTxOptions(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Pricing() Pricing { return m.pricing }

func (m *Manager) dayStart() time.Time {
	now := m.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (m *Manager) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return database.WithRetry(ctx, m.db, m.txOpts, fn)
}

// afterCommit publishes the event and drops cached dashboards. Neither can
// fail the operation that already committed.
func (m *Manager) afterCommit(ctx context.Context, order *models.Order, event events.OrderEvent) {
	ctx = context.WithoutCancel(ctx)

	event.OrderID = order.ID
	event.OrderNumber = order.OrderNumber
	event.CustomerID = order.CustomerID
	event.RestaurantID = order.RestaurantID
	event.DeliveryPersonID = order.DeliveryPersonID

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := m.publisher.Publish(pubCtx, event); err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"order_id": order.ID,
			"event_id": event.ID.String(),
			"action":   event.Action,
		}).Warn("publish order event")
	}

	if m.cache != nil {
		if err := m.cache.InvalidateDashboards(ctx, order.RestaurantID, order.CustomerID, m.dayStart()); err != nil {
			m.log.WithError(err).WithField("order_id", order.ID).Warn("invalidate dashboard cache")
		}
	}
}
