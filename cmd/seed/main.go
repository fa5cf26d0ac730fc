package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/config"
	"github.com/safar/go-food-delivery/internal/database"
	"github.com/safar/go-food-delivery/internal/logging"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type dish struct {
	name     string
	price    string
	discount string
	stock    int
}

var menu = []dish{
	{name: "Pizza", price: "12.99", stock: 5},
	{name: "Pasta", price: "9.99", discount: "8.99", stock: 10},
	{name: "Tiramisu", price: "6.50", stock: 0},
}

// seeded holds what the demo tokens are issued for.
type seeded struct {
	customer   *models.User
	owner      *models.User
	courier    *models.User
	admin      *models.User
	restaurant *models.Restaurant
	dp         *models.DeliveryPerson
}

func seed(ctx context.Context, tx *sql.Tx) (*seeded, error) {
	var s seeded
	var err error

	if s.customer, err = store.CreateUser(ctx, tx, "customer@example.com", "Demo Customer", models.RoleCustomer); err != nil {
		return nil, err
	}
	if s.owner, err = store.CreateUser(ctx, tx, "owner@example.com", "Demo Owner", models.RoleRestaurant); err != nil {
		return nil, err
	}
	if s.courier, err = store.CreateUser(ctx, tx, "courier@example.com", "Demo Courier", models.RoleDelivery); err != nil {
		return nil, err
	}
	if s.admin, err = store.CreateUser(ctx, tx, "admin@example.com", "Demo Admin", models.RoleAdmin); err != nil {
		return nil, err
	}

	if s.restaurant, err = store.CreateRestaurant(ctx, tx, s.owner.ID, "Trattoria Demo"); err != nil {
		return nil, err
	}

	for _, d := range menu {
		var discount decimal.NullDecimal
		if d.discount != "" {
			discount = decimal.NewNullDecimal(decimal.RequireFromString(d.discount))
		}
		if _, err := store.CreateMenuItem(ctx, tx, s.restaurant.ID, d.name, decimal.RequireFromString(d.price), discount, d.stock); err != nil {
			return nil, fmt.Errorf("seed %s: %w", d.name, err)
		}
	}

	if s.dp, err = store.CreateDeliveryPerson(ctx, tx, s.courier.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(config.LogConfig{}, "seed").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.Log, "seed")

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	ctx := context.Background()
	var s *seeded
	err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		s, err = seed(ctx, tx)
		return err
	})
	if err != nil {
		log.WithError(err).Fatal("seed")
	}

	roles := []auth.Role{
		auth.Customer{User: s.customer.ID},
		auth.Restaurant{User: s.owner.ID, RestaurantID: s.restaurant.ID},
		auth.Delivery{User: s.courier.ID, DeliveryPersonID: s.dp.ID},
		auth.Admin{User: s.admin.ID},
	}
	for _, role := range roles {
		token, err := auth.GenerateToken(cfg.Auth.JWTSecret, role, cfg.Auth.TokenTTL)
		if err != nil {
			log.WithError(err).Fatal("issue token")
		}
		log.WithFields(logrus.Fields{"actor": auth.Actor(role), "token": token}).Info("demo token")
	}

	log.WithFields(logrus.Fields{
		"restaurant_id":      s.restaurant.ID,
		"delivery_person_id": s.dp.ID,
		"menu_items":         len(menu),
	}).Info("seed completed")
}
