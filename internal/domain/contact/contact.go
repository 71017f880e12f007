// Package contact stores messages sent through the storefront contact form.
package contact

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/coffee-shop/internal/domain/validation"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Message is a stored contact form submission.
type Message struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// Repository persists contact messages.
type Repository interface {
	Create(ctx context.Context, m *Message) error
}

// Request is an unvalidated contact form submission. Phone is optional.
type Request struct {
	Name    string
	Email   string
	Phone   string
	Subject string
	Message string
}

func (r *Request) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Subject = strings.TrimSpace(r.Subject)
	r.Message = strings.TrimSpace(r.Message)

	switch {
	case r.Name == "":
		return validation.Errorf("name", "is required")
	case r.Email == "":
		return validation.Errorf("email", "is required")
	case r.Subject == "":
		return validation.Errorf("subject", "is required")
	case r.Message == "":
		return validation.Errorf("message", "is required")
	case !emailPattern.MatchString(r.Email):
		return validation.Errorf("email", "is not a valid email address")
	}
	return nil
}

// Service accepts contact form submissions.
type Service struct {
	messages Repository
	now      func() time.Time
}

// NewService creates a contact Service.
func NewService(messages Repository) *Service {
	return &Service{messages: messages, now: time.Now}
}

// Submit validates req and stores it.
func (s *Service) Submit(ctx context.Context, req Request) (*Message, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	m := &Message{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Subject:   req.Subject,
		Body:      req.Message,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, errors.Wrap(err, "create contact message")
	}

	zctx.From(ctx).Info("Contact message received", zap.String("contact_id", m.ID))
	return m, nil
}
