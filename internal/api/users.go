package api

import (
	"net/http"
	"strconv"

	"github.com/safar/go-food-delivery/internal/apperr"
)

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.CurrentUser(r.Context(), RoleFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// ListUsers accepts ?role=&page=&page_size=.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := intQuery(q.Get("page"), "page")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pageSize, err := intQuery(q.Get("page_size"), "page_size")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	users, err := h.svc.ListUsers(r.Context(), RoleFromContext(r.Context()), q.Get("role"), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

func intQuery(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name, "must be a non-negative integer")
	}
	return n, nil
}
