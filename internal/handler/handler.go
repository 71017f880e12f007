// Package handler exposes the shop over HTTP. Requests and responses are
// encoded with jx; routing is done by chi.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/coffee-shop/internal/domain/account"
	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/contact"
	"github.com/xenking/coffee-shop/internal/domain/order"
	"github.com/xenking/coffee-shop/internal/domain/product"
	"github.com/xenking/coffee-shop/pkg/httpmiddleware"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// CookieName names the session cookie. Sessions are only issued when a
	// SessionStore is configured.
	CookieName   string
	SessionTTL   time.Duration
	SecureCookie bool
	// DisplayLocation is the timezone the display code date is taken in.
	// Nil means UTC.
	DisplayLocation *time.Location
	// LoginThrottle guards the sign-in, sign-up and contact routes. Optional.
	LoginThrottle httpmiddleware.Middleware
}

// Handler serves the storefront and admin API.
type Handler struct {
	cfg      Config
	products product.Repository
	orders   *order.Service
	accounts *account.Service
	contacts *contact.Service
	resolver *auth.Resolver
	sessions auth.SessionStore
	metrics  *metrics
}

// New creates a Handler. sessions may be nil, in which case only bearer
// tokens are issued.
func New(
	cfg Config,
	products product.Repository,
	orders *order.Service,
	accounts *account.Service,
	contacts *contact.Service,
	resolver *auth.Resolver,
	sessions auth.SessionStore,
	meter metric.Meter,
) (*Handler, error) {
	m, err := newMetrics(meter)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.UTC
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Handler{
		cfg:      cfg,
		products: products,
		orders:   orders,
		accounts: accounts,
		contacts: contacts,
		resolver: resolver,
		sessions: sessions,
		metrics:  m,
	}, nil
}

// Register mounts the /api routes on r.
func (h *Handler) Register(r chi.Router) {
	throttle := h.cfg.LoginThrottle
	if throttle == nil {
		throttle = func(next http.Handler) http.Handler { return next }
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authenticate)

		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)

		r.Route("/auth", func(r chi.Router) {
			r.With(throttle).Post("/register", h.register)
			r.With(throttle).Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Get("/me", h.me)
			r.Put("/me", h.updateMe)
		})

		r.With(throttle).Post("/contact", h.submitContact)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.submitOrder)
			r.Get("/my", h.myOrders)
			r.Get("/number/{orderNumber}", h.getOrderByNumber)
			r.Get("/{id}", h.getOrder)
			r.Post("/{id}/cancel", h.cancelOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(throttle).Post("/login", h.adminLogin)
			r.Post("/logout", h.logout)
			r.Get("/orders", h.adminListOrders)
			r.Get("/orders/{id}", h.adminGetOrder)
			r.Put("/orders/{id}/status", h.adminUpdateStatus)
			r.Delete("/orders/{id}", h.adminDeleteOrder)
		})
	})
}

// authenticate resolves the caller and stores it in the request context.
// Requests without credentials continue as guests.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.resolver.Resolve(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}
