package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/coffee-shop/internal/domain/contact"
)

func (h *Handler) submitContact(w http.ResponseWriter, r *http.Request) {
	var req contact.Request
	if err := decodeBody(w, r, stringFields(map[string]*string{
		"name":    &req.Name,
		"email":   &req.Email,
		"phone":   &req.Phone,
		"subject": &req.Subject,
		"message": &req.Message,
	})); err != nil {
		h.writeError(w, r, err)
		return
	}

	m, err := h.contacts.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("Thanks for your message, we will reply soon.") })
			e.Field("contact", func(e *jx.Encoder) { encodeContact(e, m) })
		})
	})
}
