package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coffee-shop/internal/domain/account"
)

const (
	accountColumns = `id, name, email, phone, address, password_hash, created_at`

	createAccountSQL = `INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getAccountByIDSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	getAccountByEmailSQL = `SELECT ` + accountColumns + ` FROM accounts WHERE email = lower($1)`

	updateAccountProfileSQL = `UPDATE accounts SET name = $2, phone = $3, address = $4 WHERE id = $1`
)

var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository implements account.Repository backed by PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create inserts a new account. A taken email yields account.ErrEmailTaken.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	_, err := r.pool.Exec(ctx, createAccountSQL,
		a.ID, a.Name, a.Email, a.Phone, a.Address, a.PasswordHash, a.CreatedAt,
	)
	if err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return account.ErrEmailTaken
		}
		return errors.Wrapf(err, "create account %q", a.ID)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	return r.getOne(ctx, getAccountByIDSQL, id)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	return r.getOne(ctx, getAccountByEmailSQL, email)
}

// UpdateProfile overwrites the editable profile columns of a.
func (r *AccountRepository) UpdateProfile(ctx context.Context, a *account.Account) error {
	tag, err := r.pool.Exec(ctx, updateAccountProfileSQL, a.ID, a.Name, a.Phone, a.Address)
	if err != nil {
		return errors.Wrapf(err, "update account %q", a.ID)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) getOne(ctx context.Context, sql, arg string) (*account.Account, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "get account")
	}
	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (account.Account, error) {
		var a account.Account
		err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Phone, &a.Address, &a.PasswordHash, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, errors.Wrap(err, "get account")
	}
	return &a, nil
}
