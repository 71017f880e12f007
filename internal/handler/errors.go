package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coffee-shop/internal/domain/account"
	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/order"
	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/internal/domain/validation"
	"github.com/xenking/coffee-shop/pkg/httpmiddleware"
)

// writeError maps domain errors to HTTP responses. Unknown errors are logged
// and reported as 500 carrying only the request id.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := validation.As(err); ok {
		writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusBadRequest) })
				e.Field("message", func(e *jx.Encoder) { e.Str(ve.Error()) })
				e.Field("field", func(e *jx.Encoder) { e.Str(ve.Field) })
			})
		})
		return
	}

	var te *order.InvalidTransitionError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusConflict, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusConflict) })
				e.Field("message", func(e *jx.Encoder) { e.Str(te.Error()) })
				e.Field("currentStatus", func(e *jx.Encoder) { e.Str(string(te.Current)) })
			})
		})
		return
	}

	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, order.ErrForbidden):
		httpmiddleware.WriteError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, order.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, product.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, account.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "account not found")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusInternalServerError) })
				e.Field("message", func(e *jx.Encoder) { e.Str("internal server error") })
				if id := httpmiddleware.RequestIDFromContext(r.Context()); id != "" {
					e.Field("requestId", func(e *jx.Encoder) { e.Str(id) })
				}
			})
		})
	}
}
