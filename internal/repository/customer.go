package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/customer"
)

const (
	createCustomerSQL = `INSERT INTO customers
		(first_name, last_name, email, password_hash, address, phone, role, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	customerColumns = `id, first_name, last_name, email, password_hash, address, phone, role, registered_at`

	getCustomerByEmailSQL = `SELECT ` + customerColumns + ` FROM customers WHERE lower(email) = lower($1)`

	getCustomerByIDSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	updatePasswordSQL = `UPDATE customers SET password_hash = $2 WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// Create inserts c and returns its id. A duplicate email is reported as
// apperr.Conflict.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, createCustomerSQL,
		c.FirstName, c.LastName, c.Email, c.PasswordHash, c.Address, c.Phone, string(c.Role), c.RegisteredAt,
	).Scan(&id)
	if err != nil {
		err = classify("customer.Create", fmt.Errorf("creating customer %q: %w", c.Email, err))
		if apperr.KindOf(err) == apperr.Conflict {
			return 0, &apperr.Error{Kind: apperr.Conflict, Op: "customer.Create", Msg: "email already in use", Err: err}
		}
		return 0, err
	}
	return id, nil
}

// GetByEmail returns the customer registered under email, ignoring case.
func (r *CustomerRepository) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByEmailSQL, email)
	if err != nil {
		return nil, classify("customer.GetByEmail", fmt.Errorf("getting customer %q: %w", email, err))
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		return nil, notFoundOr("customer.GetByEmail", "customer not found", err)
	}
	return &c, nil
}

// GetByID returns the customer with the given id.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByIDSQL, id)
	if err != nil {
		return nil, classify("customer.GetByID", fmt.Errorf("getting customer %d: %w", id, err))
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		return nil, notFoundOr("customer.GetByID", "customer not found", err)
	}
	return &c, nil
}

// UpdatePassword replaces the password hash of customer id.
func (r *CustomerRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, updatePasswordSQL, id, hash)
	if err != nil {
		return classify("customer.UpdatePassword", fmt.Errorf("updating password of customer %d: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "customer.UpdatePassword", "customer not found")
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c    customer.Customer
		role string
	)
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.PasswordHash,
		&c.Address, &c.Phone, &role, &c.RegisteredAt,
	)
	c.Role = auth.Role(role)
	return c, err
}

// notFoundOr maps pgx.ErrNoRows to a NotFound error carrying msg and
// classifies anything else.
func notFoundOr(op, msg string, err error) error {
	err = classify(op, err)
	if apperr.KindOf(err) == apperr.NotFound {
		return &apperr.Error{Kind: apperr.NotFound, Op: op, Msg: msg, Err: err}
	}
	return err
}
