package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/order"
)

// submitOrder places an order for whoever is calling; guests are allowed.
func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req order.SubmitRequest
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		return decodeSubmitRequest(d, key, &req)
	}); err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	actor := auth.FromContext(ctx)
	o, err := h.orders.Create(ctx, req, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.orderCreated(ctx, o)

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		h.encodeOrder(e, o, order.VisibilityFull)
	})
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListForBuyer(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, vis, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), auth.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o, vis) })
}

func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	o, vis, err := h.orders.GetByNumber(r.Context(), chi.URLParam(r, "orderNumber"), auth.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o, vis) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.Cancel(ctx, chi.URLParam(r, "id"), auth.FromContext(ctx))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.statusChanged(ctx, o.Status)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeOrder(e, o, order.VisibilityFull)
	})
}
