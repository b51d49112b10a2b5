package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/cart"
)

const (
	listCartLinesSQL = `SELECT c.id, c.customer_id, c.product_id, c.weight, c.quantity, c.price, p.name, p.image
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		WHERE c.customer_id = $1
		ORDER BY c.id`

	// xmax is zero for a freshly inserted row and set when the conflict
	// branch updated an existing one.
	upsertCartLineSQL = `INSERT INTO cart_lines (customer_id, product_id, weight, quantity, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id, product_id, weight)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity
		RETURNING id, xmax::text <> '0'`

	updateCartQuantitySQL = `UPDATE cart_lines SET quantity = $3 WHERE customer_id = $1 AND product_id = $2`

	removeCartLineSQL = `DELETE FROM cart_lines WHERE customer_id = $1 AND product_id = $2`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Every
// mutation takes the customer's advisory lock so it never interleaves with
// an order placement for the same customer.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Lines returns the cart lines of customerID joined with product name and
// image.
func (r *CartRepository) Lines(ctx context.Context, customerID int64) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listCartLinesSQL, customerID)
	if err != nil {
		return nil, classify("cart.Lines", fmt.Errorf("listing cart of %d: %w", customerID, err))
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ID, &l.CustomerID, &l.ProductID, &l.Weight, &l.Quantity, &l.Price,
			&l.ProductName, &l.ProductImage)
		return l, err
	})
	if err != nil {
		return nil, classify("cart.Lines", fmt.Errorf("listing cart of %d: %w", customerID, err))
	}
	return lines, nil
}

// Upsert inserts l or merges its quantity into the existing line for the
// same product and weight.
func (r *CartRepository) Upsert(ctx context.Context, l cart.Line) (int64, bool, error) {
	var (
		id     int64
		merged bool
	)
	err := withCustomerLock(ctx, r.pool, l.CustomerID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, upsertCartLineSQL,
			l.CustomerID, l.ProductID, l.Weight, l.Quantity, l.Price,
		).Scan(&id, &merged)
	})
	if err != nil {
		err = classify("cart.Upsert", fmt.Errorf("adding product %d to cart of %d: %w", l.ProductID, l.CustomerID, err))
		if apperr.KindOf(err) == apperr.NotFound {
			return 0, false, &apperr.Error{Kind: apperr.NotFound, Op: "cart.Upsert", Msg: "product or customer not found", Err: err}
		}
		return 0, false, err
	}
	return id, merged, nil
}

// UpdateQuantity sets the quantity of every line of productID.
func (r *CartRepository) UpdateQuantity(ctx context.Context, customerID, productID int64, quantity int) error {
	return r.mutate(ctx, "cart.UpdateQuantity", customerID, productID, updateCartQuantitySQL, quantity)
}

// Remove deletes every line of productID.
func (r *CartRepository) Remove(ctx context.Context, customerID, productID int64) error {
	return r.mutate(ctx, "cart.Remove", customerID, productID, removeCartLineSQL)
}

func (r *CartRepository) mutate(ctx context.Context, op string, customerID, productID int64, sql string, extra ...any) error {
	var affected int64
	err := withCustomerLock(ctx, r.pool, customerID, func(tx pgx.Tx) error {
		args := append([]any{customerID, productID}, extra...)
		tag, err := tx.Exec(ctx, sql, args...)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return classify(op, fmt.Errorf("changing product %d in cart of %d: %w", productID, customerID, err))
	}
	if affected == 0 {
		return apperr.New(apperr.NotFound, op, "product not found in cart")
	}
	return nil
}
