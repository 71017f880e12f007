package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/order"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

func (h *Handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.ListFilter{Status: order.Status(q.Get("status"))}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, validation.Errorf("limit", "must be a positive integer"))
			return
		}
		f.Limit = n
	}

	orders, err := h.orders.ListAll(r.Context(), auth.FromContext(r.Context()), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

func (h *Handler) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetForAdmin(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o, order.VisibilityFull) })
}

func (h *Handler) adminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	if err := decodeBody(w, r, stringFields(map[string]*string{"status": &status})); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	o, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), order.Status(status), auth.FromContext(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.statusChanged(ctx, o.Status)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o, order.VisibilityFull) })
}

func (h *Handler) adminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context())); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
