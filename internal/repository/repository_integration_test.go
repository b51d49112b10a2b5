//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/cart"
	"github.com/xenking/epicerie/internal/domain/customer"
	"github.com/xenking/epicerie/internal/domain/order"
)

// --- Helpers ---

func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("epicerie"),
		postgres.WithUsername("epicerie"),
		postgres.WithPassword("epicerie"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(dsn))

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedCatalog(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO products (id, name, image) VALUES (1, 'Miel de lavande', 'miel.jpg'), (2, 'Poivre de Kampot', 'poivre.jpg');
		INSERT INTO weight_variants (product_id, weight, price) VALUES
			(1, '250g', 12.50), (1, '500g', 22.00), (2, '100g', 7.00);`)
	require.NoError(t, err)
}

func seedCustomer(t *testing.T, pool *pgxpool.Pool, email string) int64 {
	t.Helper()
	id, err := NewCustomerRepository(pool).Create(context.Background(), &customer.Customer{
		Email:        email,
		PasswordHash: "x",
		Role:         auth.RoleClient,
		RegisteredAt: time.Now(),
	})
	require.NoError(t, err)
	return id
}

func fillCart(t *testing.T, carts *CartRepository, customerID int64) {
	t.Helper()
	ctx := context.Background()
	_, _, err := carts.Upsert(ctx, cart.Line{CustomerID: customerID, ProductID: 1, Weight: "250g", Quantity: 2, Price: decimal.RequireFromString("12.50")})
	require.NoError(t, err)
	_, _, err = carts.Upsert(ctx, cart.Line{CustomerID: customerID, ProductID: 2, Weight: "100g", Quantity: 1, Price: decimal.RequireFromString("7.00")})
	require.NoError(t, err)
}

func count(t *testing.T, pool *pgxpool.Pool, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), sql, args...).Scan(&n))
	return n
}

// failingStore wraps OrderStore and fails CreateShipment.
type failingStore struct {
	*OrderStore
}

func (s failingStore) WithCustomerTx(ctx context.Context, customerID int64, fn func(context.Context, order.Tx) error) error {
	return s.OrderStore.WithCustomerTx(ctx, customerID, func(ctx context.Context, tx order.Tx) error {
		return fn(ctx, failingShipmentTx{tx})
	})
}

type failingShipmentTx struct {
	order.Tx
}

func (failingShipmentTx) CreateShipment(context.Context, *order.Shipment) error {
	return errors.New("disk full")
}

// --- Tests ---

func TestRepositories(t *testing.T) {
	pool := setupPool(t)
	seedCatalog(t, pool)
	ctx := context.Background()

	carts := NewCartRepository(pool)
	orders := NewOrderStore(pool)

	t.Run("DuplicateEmail", func(t *testing.T) {
		seedCustomer(t, pool, "dup@example.com")
		_, err := NewCustomerRepository(pool).Create(ctx, &customer.Customer{
			Email: "DUP@example.com", PasswordHash: "x", Role: auth.RoleClient, RegisteredAt: time.Now(),
		})
		require.ErrorIs(t, err, apperr.Conflict)
		assert.Equal(t, 1, count(t, pool, `SELECT count(*) FROM customers WHERE lower(email) = 'dup@example.com'`))
	})

	t.Run("CartMerge", func(t *testing.T) {
		id := seedCustomer(t, pool, "merge@example.com")
		line := cart.Line{CustomerID: id, ProductID: 1, Weight: "250g", Quantity: 1, Price: decimal.RequireFromString("12.50")}

		_, merged, err := carts.Upsert(ctx, line)
		require.NoError(t, err)
		assert.False(t, merged)

		_, merged, err = carts.Upsert(ctx, line)
		require.NoError(t, err)
		assert.True(t, merged)

		lines, err := carts.Lines(ctx, id)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, 2, lines[0].Quantity)
		assert.Equal(t, "Miel de lavande", lines[0].ProductName)

		require.ErrorIs(t, carts.UpdateQuantity(ctx, id, 99, 3), apperr.NotFound)
		require.NoError(t, carts.Remove(ctx, id, 1))
		require.ErrorIs(t, carts.Remove(ctx, id, 1), apperr.NotFound)

		_, _, err = carts.Upsert(ctx, cart.Line{CustomerID: id, ProductID: 404, Quantity: 1, Price: decimal.Zero})
		require.ErrorIs(t, err, apperr.NotFound)
	})

	t.Run("CartMergeOverflow", func(t *testing.T) {
		id := seedCustomer(t, pool, "overflow@example.com")
		line := cart.Line{CustomerID: id, ProductID: 1, Weight: "250g", Quantity: cart.MaxQuantity, Price: decimal.RequireFromString("12.50")}

		_, _, err := carts.Upsert(ctx, line)
		require.NoError(t, err)

		line.Quantity = 1
		_, _, err = carts.Upsert(ctx, line)
		require.ErrorIs(t, err, apperr.Validation)

		lines, err := carts.Lines(ctx, id)
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, cart.MaxQuantity, lines[0].Quantity)
	})

	t.Run("PlaceOrder", func(t *testing.T) {
		id := seedCustomer(t, pool, "order@example.com")
		fillCart(t, carts, id)

		svc, err := order.NewService(orders, nil, order.Config{})
		require.NoError(t, err)

		conf, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
			Caller:          auth.Principal{CustomerID: id, Role: auth.RoleClient},
			CustomerID:      id,
			DeliveryAddress: "3 place Bellecour, Lyon",
			Carrier:         "Chronopost",
			PaymentMethod:   "card",
		})
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("32.00").Equal(conf.Total))

		var total decimal.Decimal
		require.NoError(t, pool.QueryRow(ctx, `SELECT total FROM orders WHERE id = $1`, conf.OrderID).Scan(&total))
		assert.True(t, decimal.RequireFromString("32.00").Equal(total))
		assert.Equal(t, 2, count(t, pool, `SELECT count(*) FROM order_lines WHERE order_id = $1`, conf.OrderID))
		assert.Equal(t, 1, count(t, pool,
			`SELECT count(*) FROM shipments WHERE order_id = $1 AND ship_date IS NULL
				AND estimated_delivery = (SELECT created_at FROM orders WHERE id = $1) + interval '5 days'`, conf.OrderID))
		assert.Equal(t, 0, count(t, pool, `SELECT count(*) FROM cart_lines WHERE customer_id = $1`, id))

		history, err := orders.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, order.StatusPending, history[0].Status)
	})

	t.Run("RollbackOnShipmentFailure", func(t *testing.T) {
		id := seedCustomer(t, pool, "rollback@example.com")
		fillCart(t, carts, id)

		svc, err := order.NewService(failingStore{orders}, nil, order.Config{})
		require.NoError(t, err)

		_, err = svc.PlaceOrder(ctx, order.PlaceOrderRequest{
			Caller:          auth.Principal{CustomerID: id, Role: auth.RoleClient},
			CustomerID:      id,
			DeliveryAddress: "1 rue de la Paix",
			Carrier:         "Colissimo",
		})
		require.ErrorIs(t, err, apperr.Storage)

		assert.Equal(t, 0, count(t, pool, `SELECT count(*) FROM orders WHERE customer_id = $1`, id))
		assert.Equal(t, 2, count(t, pool, `SELECT count(*) FROM cart_lines WHERE customer_id = $1`, id))
	})

	t.Run("ConcurrentPlaceOrder", func(t *testing.T) {
		id := seedCustomer(t, pool, "race@example.com")
		fillCart(t, carts, id)

		svc, err := order.NewService(orders, nil, order.Config{})
		require.NoError(t, err)

		const n = 5
		var (
			wg   sync.WaitGroup
			errs = make([]error, n)
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = svc.PlaceOrder(ctx, order.PlaceOrderRequest{
					Caller:          auth.Principal{CustomerID: id, Role: auth.RoleClient},
					CustomerID:      id,
					DeliveryAddress: "8 quai Saint-Antoine",
					Carrier:         "Colissimo",
				})
			}()
		}
		wg.Wait()

		var ok, empty int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.EmptyCart):
				empty++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, n-1, empty)
		assert.Equal(t, 1, count(t, pool, `SELECT count(*) FROM orders WHERE customer_id = $1`, id))
	})
}
