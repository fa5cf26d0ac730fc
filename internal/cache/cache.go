// Package cache mirrors rating aggregates into Redis and memoizes dashboard
// counts. Postgres stays the source of truth; every entry here can be
// dropped at any time.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-food-delivery/internal/config"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/shopspring/decimal"
)

const ratingTTL = 24 * time.Hour

type RedisCache struct {
	Client       *redis.Client
	DashboardTTL time.Duration
}

func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisCache(client *redis.Client, dashboardTTL time.Duration) *RedisCache {
	return &RedisCache{Client: client, DashboardTTL: dashboardTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func RestaurantRatingKey(restaurantID int64) string {
	return fmt.Sprintf("restaurant:%d:rating", restaurantID)
}

func CourierRatingKey(deliveryPersonID int64) string {
	return fmt.Sprintf("courier:%d:rating", deliveryPersonID)
}

// DashboardKey is per scope and per UTC day, so yesterday's counts expire on
// their own.
func DashboardKey(scope store.DashboardScope, day time.Time) string {
	return fmt.Sprintf("dashboard:%d:%d:%s", scope.RestaurantID, scope.CustomerID, day.UTC().Format("2006-01-02"))
}

func (c *RedisCache) MirrorRestaurantRating(ctx context.Context, restaurantID int64, avg decimal.Decimal, count int) error {
	return c.mirror(ctx, RestaurantRatingKey(restaurantID), avg, count)
}

func (c *RedisCache) MirrorCourierRating(ctx context.Context, deliveryPersonID int64, avg decimal.Decimal) error {
	return c.mirror(ctx, CourierRatingKey(deliveryPersonID), avg, -1)
}

func (c *RedisCache) mirror(ctx context.Context, key string, avg decimal.Decimal, count int) error {
	fields := map[string]interface{}{
		"avg_rating":   avg.StringFixed(2),
		"last_updated": time.Now().Unix(),
	}
	if count >= 0 {
		fields["rating_count"] = count
	}

	pipe := c.Client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ratingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror %s: %w", key, err)
	}
	return nil
}

// RestaurantRating reads the mirrored average; ok is false on a miss.
func (c *RedisCache) RestaurantRating(ctx context.Context, restaurantID int64) (decimal.Decimal, bool, error) {
	raw, err := c.Client.HGet(ctx, RestaurantRatingKey(restaurantID), "avg_rating").Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	avg, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse cached rating: %w", err)
	}
	return avg, true, nil
}

func (c *RedisCache) Dashboard(ctx context.Context, scope store.DashboardScope, day time.Time) (*store.DashboardCounts, bool, error) {
	raw, err := c.Client.Get(ctx, DashboardKey(scope, day)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var counts store.DashboardCounts
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, false, fmt.Errorf("decode cached dashboard: %w", err)
	}
	return &counts, true, nil
}

func (c *RedisCache) StoreDashboard(ctx context.Context, scope store.DashboardScope, day time.Time, counts *store.DashboardCounts) error {
	payload, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, DashboardKey(scope, day), payload, c.DashboardTTL).Err()
}

// InvalidateDashboards drops the cached counts an order change can affect:
// the restaurant's, the customer's and the unscoped one.
func (c *RedisCache) InvalidateDashboards(ctx context.Context, restaurantID, customerID int64, day time.Time) error {
	return c.Client.Del(ctx,
		DashboardKey(store.DashboardScope{}, day),
		DashboardKey(store.DashboardScope{RestaurantID: restaurantID}, day),
		DashboardKey(store.DashboardScope{CustomerID: customerID}, day),
	).Err()
}
