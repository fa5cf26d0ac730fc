// Package api exposes the order lifecycle over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/cart"
	"github.com/safar/go-food-delivery/internal/config"
	"github.com/safar/go-food-delivery/internal/events"
	"github.com/safar/go-food-delivery/internal/lifecycle"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/store"
	"github.com/safar/go-food-delivery/internal/ws"
	"github.com/sirupsen/logrus"
)

// Service is the slice of *lifecycle.Manager the handlers call.
type Service interface {
	AddToCart(ctx context.Context, c *cart.Cart, menuItemID int64, quantity int) error
	SetCartQuantity(ctx context.Context, c *cart.Cart, menuItemID int64, quantity int) error
	Preview(c *cart.Cart) lifecycle.Quote
	Checkout(ctx context.Context, actor auth.Role, c *cart.Cart, info lifecycle.DeliveryInfo, paymentMethod string) (*lifecycle.CheckoutResult, error)

	ConfirmOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error)
	RejectOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error)
	CancelOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error)
	StartPreparing(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error)
	MarkReadyForPickup(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error)
	AcceptDelivery(ctx context.Context, actor auth.Role, orderID, deliveryPersonID int64) (*models.Order, error)
	CompleteDelivery(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error)
	SubmitRating(ctx context.Context, actor auth.Role, orderID int64, foodRating, deliveryRating int, comment string) (*models.Rating, error)
	ToggleDeliveryPersonAvailability(ctx context.Context, actor auth.Role, deliveryPersonID int64) (string, error)
	SetMenuItemStock(ctx context.Context, actor auth.Role, menuItemID int64, stock, version int) (*models.MenuItem, error)

	ListOrders(ctx context.Context, actor auth.Role, filter store.OrderFilter, cursor string, limit int) (*store.CursorPage, error)
	GetOrder(ctx context.Context, actor auth.Role, orderID int64) (*models.Order, error)
	OrderHistory(ctx context.Context, actor auth.Role, orderID int64) ([]models.StatusChange, error)
	Dashboard(ctx context.Context, actor auth.Role) (*store.DashboardCounts, error)
	RatingSummary(ctx context.Context, restaurantID int64) (*store.RatingSummary, error)
	CourierEarnings(ctx context.Context, actor auth.Role, deliveryPersonID int64) (*store.CourierEarnings, error)
	ListMenu(ctx context.Context, restaurantID int64) ([]models.MenuItem, error)
	OrderRating(ctx context.Context, actor auth.Role, orderID int64) (*models.Rating, error)
	CurrentUser(ctx context.Context, actor auth.Role) (*models.User, error)
	ListUsers(ctx context.Context, actor auth.Role, role string, page, pageSize int) (*store.OffsetPage, error)
}

type Handler struct {
	svc      Service
	sessions *cart.Sessions
	log      *logrus.Entry
}

func NewHandler(svc Service, sessions *cart.Sessions, log *logrus.Entry) *Handler {
	return &Handler{svc: svc, sessions: sessions, log: log}
}

// NewRouter wires every route. The broker feeds /ws; pass nil to leave the
// push endpoint out.
func NewRouter(cfg *config.Config, h *Handler, broker *events.Broker) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if broker != nil {
		r.Get("/ws", ws.ServeWS(broker, cfg.Auth.JWTSecret, h.log))
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.Auth.JWTSecret, h.log))

		r.Post("/logout", h.Logout)
		r.Get("/me", h.CurrentUser)
		r.Get("/users", h.ListUsers)
		r.Get("/dashboard", h.Dashboard)

		r.Route("/cart", h.RegisterCartRoutes)
		r.Post("/checkout", h.Checkout)

		r.Route("/orders", h.RegisterOrderRoutes)

		r.Get("/restaurants/{id}/menu", h.ListMenu)
		r.Get("/restaurants/{id}/ratings", h.RatingSummary)
		r.Put("/menu-items/{id}/stock", h.SetMenuItemStock)

		r.Route("/delivery-persons/{id}", func(r chi.Router) {
			r.Get("/earnings", h.CourierEarnings)
			r.Post("/availability", h.ToggleAvailability)
		})
	})

	return r
}
