package api

import (
	"net/http"

	"github.com/safar/go-food-delivery/internal/models"
)

func (h *Handler) ListMenu(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.svc.ListMenu(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) RatingSummary(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	summary, err := h.svc.RatingSummary(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

type setStockRequest struct {
	Stock   int `json:"stock_quantity"`
	Version int `json:"version"`
}

func (h *Handler) SetMenuItemStock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req setStockRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.svc.SetMenuItemStock(r.Context(), RoleFromContext(r.Context()), id, req.Stock, req.Version)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) CourierEarnings(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	earnings, err := h.svc.CourierEarnings(r.Context(), RoleFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, earnings)
}

type availabilityResponse struct {
	DeliveryPersonID int64  `json:"delivery_person_id"`
	Status           string `json:"status"`
}

func (h *Handler) ToggleAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status, err := h.svc.ToggleDeliveryPersonAvailability(r.Context(), RoleFromContext(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, availabilityResponse{DeliveryPersonID: id, Status: status})
}
