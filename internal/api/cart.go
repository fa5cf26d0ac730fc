package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/cart"
	"github.com/safar/go-food-delivery/internal/lifecycle"
)

func (h *Handler) RegisterCartRoutes(r chi.Router) {
	r.Get("/", h.GetCart)
	r.Delete("/", h.ClearCart)
	r.Post("/items", h.AddCartItem)
	r.Put("/items/{id}", h.SetCartItem)
	r.Delete("/items/{id}", h.RemoveCartItem)
}

type cartResponse struct {
	RestaurantID int64           `json:"restaurant_id,omitempty"`
	Lines        []cart.Line     `json:"lines"`
	Quote        lifecycle.Quote `json:"quote"`
}

type addCartItemRequest struct {
	MenuItemID int64 `json:"menu_item_id"`
	Quantity   int   `json:"quantity"`
}

type setCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	lifecycle.DeliveryInfo
	PaymentMethod string `json:"payment_method"`
}

// customer returns the caller's customer id. Only customers hold carts.
func customer(r *http.Request) (int64, error) {
	c, ok := RoleFromContext(r.Context()).(auth.Customer)
	if !ok {
		return 0, fmt.Errorf("%w: only customers have a cart", apperr.ErrForbidden)
	}
	return c.User, nil
}

func (h *Handler) cartView(c *cart.Cart) cartResponse {
	lines := c.Lines()
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartResponse{RestaurantID: c.RestaurantID(), Lines: lines, Quote: h.svc.Preview(c)}
}

// withCart runs fn against the caller's cart and replies with its new state.
func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, fn func(c *cart.Cart) error) {
	customerID, err := customer(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var view cartResponse
	err = h.sessions.With(customerID, func(c *cart.Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		view = h.cartView(c)
		return nil
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(*cart.Cart) error { return nil })
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withCart(w, r, func(c *cart.Cart) error {
		return h.svc.AddToCart(r.Context(), c, req.MenuItemID, req.Quantity)
	})
}

func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req setCartItemRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withCart(w, r, func(c *cart.Cart) error {
		return h.svc.SetCartQuantity(r.Context(), c, id, req.Quantity)
	})
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.withCart(w, r, func(c *cart.Cart) error {
		if !c.Remove(id) {
			return apperr.NotFound("cart line", id)
		}
		return nil
	})
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID, err := customer(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var result *lifecycle.CheckoutResult
	err = h.sessions.With(customerID, func(c *cart.Cart) error {
		var err error
		result, err = h.svc.Checkout(r.Context(), RoleFromContext(r.Context()), c, req.DeliveryInfo, req.PaymentMethod)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// Logout forgets the caller's cart. Other roles have nothing to drop.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, ok := RoleFromContext(r.Context()).(auth.Customer); ok {
		h.sessions.Drop(c.User)
	}
	w.WriteHeader(http.StatusNoContent)
}
