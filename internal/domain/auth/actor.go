// Package auth resolves who is calling: a guest, a member buyer, or the shop
// administrator. Session cookies and bearer tokens both end up as an Actor.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when an operation needs an identity
	// and the request carries none, or carries an invalid one.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionNotFound is returned by a SessionStore for unknown or
	// expired session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// Kind classifies an Actor.
type Kind uint8

const (
	KindGuest Kind = iota
	KindBuyer
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindBuyer:
		return "buyer"
	case KindAdmin:
		return "admin"
	default:
		return "guest"
	}
}

// ParseKind is the inverse of Kind.String. Unknown values are guests.
func ParseKind(s string) Kind {
	switch s {
	case "buyer":
		return KindBuyer
	case "admin":
		return KindAdmin
	default:
		return KindGuest
	}
}

// Actor is the resolved caller of an operation. For buyers ID is the account
// id; for the admin it is the admin username.
type Actor struct {
	Kind Kind
	ID   string
}

func Guest() Actor { return Actor{Kind: KindGuest} }

func Buyer(accountID string) Actor { return Actor{Kind: KindBuyer, ID: accountID} }

func Admin(username string) Actor { return Actor{Kind: KindAdmin, ID: username} }

func (a Actor) IsGuest() bool { return a.Kind == KindGuest }
func (a Actor) IsBuyer() bool { return a.Kind == KindBuyer && a.ID != "" }
func (a Actor) IsAdmin() bool { return a.Kind == KindAdmin }

// BuyerID returns the account id for buyers and "" for everyone else.
func (a Actor) BuyerID() string {
	if a.IsBuyer() {
		return a.ID
	}
	return ""
}

// Owns reports whether the actor is the buyer recorded as buyerID.
func (a Actor) Owns(buyerID string) bool {
	return buyerID != "" && a.IsBuyer() && a.ID == buyerID
}

type actorKey struct{}

// WithActor stores a in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx, or a guest.
func FromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Guest()
}
