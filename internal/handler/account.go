package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coffee-shop/internal/domain/account"
	"github.com/xenking/coffee-shop/internal/domain/auth"
)

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req account.RegisterRequest
	err := decodeBody(w, r, stringFields(map[string]*string{
		"name":     &req.Name,
		"email":    &req.Email,
		"password": &req.Password,
		"phone":    &req.Phone,
		"address":  &req.Address,
	}))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	s, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, s, http.StatusCreated)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	if err := decodeBody(w, r, stringFields(map[string]*string{
		"email":    &email,
		"password": &password,
	})); err != nil {
		h.writeError(w, r, err)
		return
	}

	s, err := h.accounts.Login(r.Context(), email, password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, s, http.StatusOK)
}

func (h *Handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var username, password string
	if err := decodeBody(w, r, stringFields(map[string]*string{
		"username": &username,
		"password": &password,
	})); err != nil {
		h.writeError(w, r, err)
		return
	}

	s, err := h.accounts.AdminLogin(r.Context(), username, password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.startSession(w, r, s, http.StatusOK)
}

// startSession writes the token response and, when a session store is
// configured, sets the session cookie as well.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, s *account.Session, status int) {
	if h.sessions != nil && h.cfg.CookieName != "" {
		id, err := h.sessions.Create(r.Context(), s.Actor, h.cfg.SessionTTL)
		if err != nil {
			h.writeError(w, r, errors.Wrap(err, "create session"))
			return
		}
		http.SetCookie(w, h.cookie(id, int(h.cfg.SessionTTL/time.Second)))
	}
	writeJSON(w, status, func(e *jx.Encoder) { encodeSession(e, s) })
}

// logout drops the server-side session, if any. Bearer tokens simply expire.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if id := h.resolver.SessionID(r); id != "" {
		if err := h.sessions.Delete(r.Context(), id); err != nil {
			zctx.From(r.Context()).Warn("Delete session", zap.Error(err))
		}
		http.SetCookie(w, h.cookie("", -1))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// me returns the member profile together with first-order eligibility.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.FromContext(ctx)

	if actor.IsAdmin() {
		writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("role", func(e *jx.Encoder) { e.Str(actor.Kind.String()) })
				e.Field("username", func(e *jx.Encoder) { e.Str(actor.ID) })
			})
		})
		return
	}

	a, err := h.accounts.Profile(ctx, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	prior, err := h.orders.PriorOrderCount(ctx, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("role", func(e *jx.Encoder) { e.Str(actor.Kind.String()) })
			e.Field("account", func(e *jx.Encoder) { encodeAccount(e, a) })
			e.Field("priorOrderCount", func(e *jx.Encoder) { e.Int(prior) })
			e.Field("firstOrderEligible", func(e *jx.Encoder) { e.Bool(prior == 0) })
		})
	})
}

// updateMe edits the caller's name, phone and address. Other keys, email
// and password included, are ignored.
func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var upd account.ProfileUpdate
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		return decodeProfileUpdate(d, key, &upd)
	}); err != nil {
		h.writeError(w, r, err)
		return
	}

	a, err := h.accounts.UpdateProfile(r.Context(), auth.FromContext(r.Context()), upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("account", func(e *jx.Encoder) { encodeAccount(e, a) })
		})
	})
}
