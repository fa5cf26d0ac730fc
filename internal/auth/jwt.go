package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/go-food-delivery/internal/models"
)

type Claims struct {
	UserID           int64  `json:"user_id"`
	Role             string `json:"role"`
	RestaurantID     int64  `json:"restaurant_id,omitempty"`
	DeliveryPersonID int64  `json:"delivery_person_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal turns the claims into the role variant they describe.
func (c *Claims) Principal() (Role, error) {
	switch c.Role {
	case models.RoleCustomer:
		return Customer{User: c.UserID}, nil
	case models.RoleRestaurant:
		if c.RestaurantID == 0 {
			return nil, fmt.Errorf("restaurant token without restaurant_id")
		}
		return Restaurant{User: c.UserID, RestaurantID: c.RestaurantID}, nil
	case models.RoleDelivery:
		if c.DeliveryPersonID == 0 {
			return nil, fmt.Errorf("delivery token without delivery_person_id")
		}
		return Delivery{User: c.UserID, DeliveryPersonID: c.DeliveryPersonID}, nil
	case models.RoleAdmin:
		return Admin{User: c.UserID}, nil
	}
	return nil, fmt.Errorf("unknown role %q", c.Role)
}

// ClaimsFor is the inverse of Principal.
func ClaimsFor(role Role) Claims {
	claims := Claims{UserID: role.UserID(), Role: role.Name()}
	switch r := role.(type) {
	case Restaurant:
		claims.RestaurantID = r.RestaurantID
	case Delivery:
		claims.DeliveryPersonID = r.DeliveryPersonID
	}
	return claims
}

func GenerateToken(secret string, role Role, ttl time.Duration) (string, error) {
	claims := ClaimsFor(role)
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ParseRole validates the token and returns its role variant.
func ParseRole(secret, tokenStr string) (Role, error) {
	claims, err := ValidateToken(secret, tokenStr)
	if err != nil {
		return nil, err
	}
	return claims.Principal()
}
