package account

import (
	"context"
	"crypto/subtle"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/coffee-shop/internal/domain/auth"
	"github.com/xenking/coffee-shop/internal/domain/validation"
)

const minPasswordLen = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AdminCredentials identifies the single shop administrator.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// RegisterRequest holds sign-up input.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  string
}

func (r *RegisterRequest) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Address = strings.TrimSpace(r.Address)

	switch {
	case r.Name == "":
		return validation.Errorf("name", "is required")
	case r.Email == "":
		return validation.Errorf("email", "is required")
	case !emailPattern.MatchString(r.Email):
		return validation.Errorf("email", "is not a valid email address")
	case len(r.Password) < minPasswordLen:
		return validation.Errorf("password", "must be at least %d characters", minPasswordLen)
	}
	return nil
}

// ProfileUpdate carries the member-editable profile fields. Nil fields are
// left unchanged; email and password are not editable here.
type ProfileUpdate struct {
	Name    *string
	Phone   *string
	Address *string
}

func (u *ProfileUpdate) normalize() error {
	for _, f := range []*string{u.Name, u.Phone, u.Address} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if u.Name != nil && *u.Name == "" {
		return validation.Errorf("name", "must not be empty")
	}
	return nil
}

func (u *ProfileUpdate) apply(a *Account) {
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Phone != nil {
		a.Phone = *u.Phone
	}
	if u.Address != nil {
		a.Address = *u.Address
	}
}

// Session is the result of a successful sign-in.
type Session struct {
	Actor     auth.Actor
	Token     string
	ExpiresAt time.Time
	// Account is nil for the administrator.
	Account *Account
}

// Service handles registration and sign-in.
type Service struct {
	accounts Repository
	tokens   *auth.Tokens
	admin    AdminCredentials
	cost     int
	now      func() time.Time
}

// NewService creates an account Service.
func NewService(accounts Repository, tokens *auth.Tokens, admin AdminCredentials) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		admin:    admin,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// Register creates a member account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	a := &Account{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, validation.Errorf("email", "is already registered")
		}
		return nil, errors.Wrap(err, "create account")
	}

	zctx.From(ctx).Info("Account registered", zap.String("account_id", a.ID))
	return s.issue(auth.Buyer(a.ID), a)
}

// Login signs a member in by email and password.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	a, err := s.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "get account")
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(auth.Buyer(a.ID), a)
}

// AdminLogin signs the administrator in.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (*Session, error) {
	if s.admin.Username == "" || s.admin.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.Username)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(password)) == nil
	if !userOK || !passOK {
		zctx.From(ctx).Warn("Admin login rejected", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}
	return s.issue(auth.Admin(s.admin.Username), nil)
}

// Profile returns the calling buyer's account.
func (s *Service) Profile(ctx context.Context, actor auth.Actor) (*Account, error) {
	if !actor.IsBuyer() {
		return nil, auth.ErrUnauthenticated
	}
	return s.accounts.GetByID(ctx, actor.ID)
}

// UpdateProfile applies upd to the calling buyer's account and returns the
// stored result.
func (s *Service) UpdateProfile(ctx context.Context, actor auth.Actor, upd ProfileUpdate) (*Account, error) {
	if !actor.IsBuyer() {
		return nil, auth.ErrUnauthenticated
	}
	if err := upd.normalize(); err != nil {
		return nil, err
	}

	a, err := s.accounts.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	updated := *a
	upd.apply(&updated)
	if err := s.accounts.UpdateProfile(ctx, &updated); err != nil {
		return nil, errors.Wrap(err, "update profile")
	}

	zctx.From(ctx).Info("Profile updated", zap.String("account_id", updated.ID))
	return &updated, nil
}

func (s *Service) issue(actor auth.Actor, a *Account) (*Session, error) {
	token, exp, err := s.tokens.Issue(actor)
	if err != nil {
		return nil, err
	}
	return &Session{Actor: actor, Token: token, ExpiresAt: exp, Account: a}, nil
}

// HashPassword returns the bcrypt hash of password, as expected in
// AdminCredentials.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}
