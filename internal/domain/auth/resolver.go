package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// SessionStore keeps server-side sessions referenced by a cookie.
type SessionStore interface {
	Create(ctx context.Context, a Actor, ttl time.Duration) (string, error)
	Lookup(ctx context.Context, id string) (Actor, error)
	Delete(ctx context.Context, id string) error
}

// Resolver turns request credentials into an Actor. A session cookie wins
// over a bearer token; a request with neither is a guest.
type Resolver struct {
	tokens     *Tokens
	sessions   SessionStore
	cookieName string
}

// NewResolver creates a Resolver. sessions may be nil, in which case only
// bearer tokens are honoured.
func NewResolver(tokens *Tokens, sessions SessionStore, cookieName string) *Resolver {
	return &Resolver{tokens: tokens, sessions: sessions, cookieName: cookieName}
}

// Resolve returns the caller of r. Stale session cookies are ignored, but a
// bearer token that fails verification is rejected with ErrUnauthenticated
// so a member is never silently downgraded to a guest.
func (res *Resolver) Resolve(r *http.Request) (Actor, error) {
	if id := res.sessionID(r); id != "" {
		a, err := res.sessions.Lookup(r.Context(), id)
		switch {
		case err == nil:
			return a, nil
		case !errors.Is(err, ErrSessionNotFound):
			return Guest(), errors.Wrap(err, "lookup session")
		}
	}

	raw, ok := bearerToken(r)
	if !ok {
		return Guest(), nil
	}
	a, err := res.tokens.Parse(raw)
	if err != nil {
		return Guest(), errors.Wrap(ErrUnauthenticated, err.Error())
	}
	return a, nil
}

// SessionID returns the session cookie value carried by r, if sessions are
// enabled.
func (res *Resolver) SessionID(r *http.Request) string {
	return res.sessionID(r)
}

func (res *Resolver) sessionID(r *http.Request) string {
	if res.sessions == nil || res.cookieName == "" {
		return ""
	}
	c, err := r.Cookie(res.cookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
