package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coffee-shop/internal/domain/contact"
)

const createContactSQL = `INSERT INTO contacts (id, name, email, phone, subject, message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

var _ contact.Repository = (*ContactRepository)(nil)

// ContactRepository implements contact.Repository backed by PostgreSQL.
type ContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

func (r *ContactRepository) Create(ctx context.Context, m *contact.Message) error {
	_, err := r.pool.Exec(ctx, createContactSQL,
		m.ID, m.Name, m.Email, m.Phone, m.Subject, m.Body, m.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create contact %q", m.ID)
	}
	return nil
}
