package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/epicerie/internal/domain/cart"
	"github.com/xenking/epicerie/internal/domain/order"
)

const (
	lockCartLinesSQL = `SELECT id, customer_id, product_id, weight, quantity, price
		FROM cart_lines WHERE customer_id = $1 ORDER BY id FOR UPDATE`

	createOrderSQL = `INSERT INTO orders (customer_id, total, status, payment_method, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	createShipmentSQL = `INSERT INTO shipments (order_id, delivery_address, carrier, ship_date, estimated_delivery)
		VALUES ($1, $2, $3, $4, $5)`

	clearCartSQL = `DELETE FROM cart_lines WHERE customer_id = $1`

	orderHistorySQL = `SELECT o.id, o.total, o.status, o.created_at, l.product_id, p.name, l.quantity, l.weight, l.unit_price
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		JOIN products p ON p.id = l.product_id
		WHERE o.customer_id = $1
		ORDER BY o.created_at DESC, o.id DESC, l.id`
)

var orderLineColumns = []string{"order_id", "product_id", "quantity", "weight", "unit_price"}

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// WithCustomerTx runs fn in one transaction holding the advisory lock of
// customerID. pgx commits when fn returns nil and rolls back otherwise,
// including when ctx expires mid-statement.
func (s *OrderStore) WithCustomerTx(ctx context.Context, customerID int64, fn func(context.Context, order.Tx) error) error {
	return withCustomerLock(ctx, s.pool, customerID, func(tx pgx.Tx) error {
		return fn(ctx, &orderTx{tx: tx})
	})
}

// History returns the order lines of customerID, newest order first.
func (s *OrderStore) History(ctx context.Context, customerID int64) ([]order.HistoryRow, error) {
	rows, err := s.pool.Query(ctx, orderHistorySQL, customerID)
	if err != nil {
		return nil, classify("order.History", fmt.Errorf("listing orders of %d: %w", customerID, err))
	}
	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.HistoryRow, error) {
		var (
			h      order.HistoryRow
			status string
		)
		err := row.Scan(&h.OrderID, &h.Total, &status, &h.CreatedAt,
			&h.ProductID, &h.ProductName, &h.Quantity, &h.Weight, &h.UnitPrice)
		h.Status = order.Status(status)
		return h, err
	})
	if err != nil {
		return nil, classify("order.History", fmt.Errorf("listing orders of %d: %w", customerID, err))
	}
	return history, nil
}

// orderTx implements order.Tx on an open transaction.
type orderTx struct {
	tx pgx.Tx
}

func (t *orderTx) CartLines(ctx context.Context, customerID int64) ([]cart.Line, error) {
	rows, err := t.tx.Query(ctx, lockCartLinesSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("reading cart of %d: %w", customerID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ID, &l.CustomerID, &l.ProductID, &l.Weight, &l.Quantity, &l.Price)
		return l, err
	})
}

func (t *orderTx) CreateOrder(ctx context.Context, o *order.Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, createOrderSQL,
		o.CustomerID, o.Total, string(o.Status), o.PaymentMethod, o.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("creating order for %d: %w", o.CustomerID, err)
	}
	return id, nil
}

func (t *orderTx) CreateLines(ctx context.Context, lines []order.Line) error {
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{"order_lines"}, orderLineColumns,
		pgx.CopyFromSlice(len(lines), func(i int) ([]any, error) {
			l := lines[i]
			return []any{l.OrderID, l.ProductID, l.Quantity, l.Weight, l.UnitPrice}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("creating order lines: %w", err)
	}
	if int(n) != len(lines) {
		return fmt.Errorf("creating order lines: copied %d of %d", n, len(lines))
	}
	return nil
}

func (t *orderTx) CreateShipment(ctx context.Context, sh *order.Shipment) error {
	_, err := t.tx.Exec(ctx, createShipmentSQL,
		sh.OrderID, sh.DeliveryAddress, sh.Carrier, sh.ShipDate, sh.EstimatedDelivery,
	)
	if err != nil {
		return fmt.Errorf("creating shipment for order %d: %w", sh.OrderID, err)
	}
	return nil
}

func (t *orderTx) ClearCart(ctx context.Context, customerID int64) error {
	if _, err := t.tx.Exec(ctx, clearCartSQL, customerID); err != nil {
		return fmt.Errorf("clearing cart of %d: %w", customerID, err)
	}
	return nil
}
