package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-food-delivery/internal/apperr"
	"github.com/safar/go-food-delivery/internal/auth"
	"github.com/safar/go-food-delivery/internal/models"
	"github.com/safar/go-food-delivery/internal/receipt"
	"github.com/safar/go-food-delivery/internal/store"
)

func (h *Handler) RegisterOrderRoutes(r chi.Router) {
	r.Get("/", h.ListOrders)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Get("/history", h.OrderHistory)
		r.Get("/qrcode", h.OrderQRCode)

		r.Post("/confirm", h.transition(models.ActionConfirm))
		r.Post("/reject", h.transition(models.ActionReject))
		r.Post("/cancel", h.transition(models.ActionCancel))
		r.Post("/start-preparing", h.transition(models.ActionStartPreparing))
		r.Post("/ready", h.transition(models.ActionMarkReady))
		r.Post("/complete", h.transition(models.ActionComplete))
		r.Post("/accept", h.AcceptDelivery)
		r.Post("/rating", h.SubmitRating)
		r.Get("/rating", h.OrderRating)
	})
}

// apply runs the status operation named by action.
func (h *Handler) apply(ctx context.Context, action string, actor auth.Role, orderID int64) (*models.Order, error) {
	switch action {
	case models.ActionConfirm:
		return h.svc.ConfirmOrder(ctx, actor, orderID)
	case models.ActionReject:
		return h.svc.RejectOrder(ctx, actor, orderID)
	case models.ActionCancel:
		return h.svc.CancelOrder(ctx, actor, orderID)
	case models.ActionStartPreparing:
		return h.svc.StartPreparing(ctx, actor, orderID)
	case models.ActionMarkReady:
		return h.svc.MarkReadyForPickup(ctx, actor, orderID)
	case models.ActionComplete:
		return h.svc.CompleteDelivery(ctx, actor, orderID)
	}
	return nil, apperr.Validation("action", "unknown action "+action)
}

// transition serves a single-order status operation.
func (h *Handler) transition(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		order, err := h.apply(r.Context(), action, RoleFromContext(r.Context()), id)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusOK, order)
	}
}

type acceptRequest struct {
	DeliveryPersonID int64 `json:"delivery_person_id"`
}

// AcceptDelivery assigns the calling courier. Admins name the courier in the
// body.
func (h *Handler) AcceptDelivery(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	role := RoleFromContext(r.Context())
	var dpID int64
	switch v := role.(type) {
	case auth.Delivery:
		dpID = v.DeliveryPersonID
	case auth.Admin:
		var req acceptRequest
		if err := decode(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		dpID = req.DeliveryPersonID
	}

	order, err := h.svc.AcceptDelivery(r.Context(), role, id, dpID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

type ratingRequest struct {
	FoodRating     int    `json:"food_rating"`
	DeliveryRating int    `json:"delivery_rating"`
	Comment        string `json:"comment"`
}

func (h *Handler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req ratingRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	rating, err := h.svc.SubmitRating(r.Context(), RoleFromContext(r.Context()), id, req.FoodRating, req.DeliveryRating, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rating)
}

func (h *Handler) OrderRating(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rating, err := h.svc.OrderRating(r.Context(), RoleFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rating)
}

// ListOrders accepts ?status=a,b&unassigned=true&cursor=&limit=. The role
// narrows the result further.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter store.OrderFilter
	if s := q.Get("status"); s != "" {
		for _, status := range strings.Split(s, ",") {
			if status = strings.TrimSpace(status); status != "" {
				filter.Statuses = append(filter.Statuses, status)
			}
		}
	}
	if s := q.Get("unassigned"); s != "" {
		unassigned, err := strconv.ParseBool(s)
		if err != nil {
			h.writeError(w, r, apperr.Validation("unassigned", "must be a boolean"))
			return
		}
		filter.Unassigned = unassigned
	}

	limit, err := intQuery(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.svc.ListOrders(r.Context(), RoleFromContext(r.Context()), filter, q.Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.GetOrder(r.Context(), RoleFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	history, err := h.svc.OrderHistory(r.Context(), RoleFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// OrderQRCode serves the hand-off receipt as a PNG.
func (h *Handler) OrderQRCode(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.svc.GetOrder(r.Context(), RoleFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	png, err := receipt.PNG(order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.log.WithError(err).WithField("order_id", id).Warn("write qr code")
	}
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Dashboard(r.Context(), RoleFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, counts)
}
