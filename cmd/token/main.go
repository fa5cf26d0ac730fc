// Command token issues a signed role token for local testing. Password login
// lives outside this service.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/config"
	"github.com/safar/go-food-delivery/internal/logging"
	"github.com/safar/go-food-delivery/internal/models"
)

func main() {
	roleName := flag.String("role", models.RoleCustomer, "customer|restaurant|delivery|admin")
	userID := flag.Int64("user", 0, "user id")
	restaurantID := flag.Int64("restaurant", 0, "restaurant id (restaurant role)")
	deliveryPersonID := flag.Int64("delivery-person", 0, "delivery person id (delivery role)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New(config.LogConfig{}, "token").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.Log, "token")

	if *userID <= 0 {
		log.Fatal("-user is required")
	}

	claims := auth.Claims{
		UserID:           *userID,
		Role:             *roleName,
		RestaurantID:     *restaurantID,
		DeliveryPersonID: *deliveryPersonID,
	}
	role, err := claims.Principal()
	if err != nil {
		log.WithError(err).Fatal("build role")
	}

	token, err := auth.GenerateToken(cfg.Auth.JWTSecret, role, cfg.Auth.TokenTTL)
	if err != nil {
		log.WithError(err).Fatal("sign token")
	}
	fmt.Fprintln(os.Stdout, token)
}
