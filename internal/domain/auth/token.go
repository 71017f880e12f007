package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload issued to members and the admin.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a Tokens signing with secret. Issued tokens expire after ttl.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs a token for a. Guests cannot hold tokens.
func (t *Tokens) Issue(a Actor) (string, time.Time, error) {
	if a.IsGuest() || a.ID == "" {
		return "", time.Time{}, errors.New("cannot issue token for guest")
	}

	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Role: a.Kind.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// Parse verifies raw and returns the actor it was issued for.
func (t *Tokens) Parse(raw string) (Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Guest(), errors.Wrap(ErrInvalidToken, err.Error())
	}

	kind := ParseKind(claims.Role)
	if kind == KindGuest || claims.Subject == "" {
		return Guest(), ErrInvalidToken
	}
	return Actor{Kind: kind, ID: claims.Subject}, nil
}
