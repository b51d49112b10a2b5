package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/cart"
)

// --- Mock implementations ---

// memStore is an in-memory Store. Writes made inside WithCustomerTx are
// buffered and only applied when fn returns nil.
type memStore struct {
	mu        sync.Mutex
	locks     map[int64]*sync.Mutex
	carts     map[int64][]cart.Line
	orders    []Order
	lines     []Line
	shipments []Shipment
	nextID    int64

	// failOn makes the named Tx method return the error.
	failOn map[string]error
	// block makes the named Tx method wait for context cancellation.
	block string
}

func newMemStore() *memStore {
	return &memStore{
		locks:  make(map[int64]*sync.Mutex),
		carts:  make(map[int64][]cart.Line),
		failOn: make(map[string]error),
	}
}

func (m *memStore) customerLock(id int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *memStore) WithCustomerTx(ctx context.Context, customerID int64, fn func(context.Context, Tx) error) error {
	lock := m.customerLock(customerID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{store: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, tx.orders...)
	m.lines = append(m.lines, tx.lines...)
	m.shipments = append(m.shipments, tx.shipments...)
	for _, id := range tx.cleared {
		delete(m.carts, id)
	}
	return nil
}

func (m *memStore) History(_ context.Context, customerID int64) ([]HistoryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []HistoryRow
	for _, o := range m.orders {
		if o.CustomerID != customerID {
			continue
		}
		for _, l := range m.lines {
			if l.OrderID == o.ID {
				rows = append(rows, HistoryRow{
					OrderID: o.ID, Total: o.Total, Status: o.Status, CreatedAt: o.CreatedAt,
					ProductID: l.ProductID, Quantity: l.Quantity, Weight: l.Weight, UnitPrice: l.UnitPrice,
				})
			}
		}
	}
	return rows, nil
}

func (m *memStore) cartOf(id int64) []cart.Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[id]
}

type memTx struct {
	store     *memStore
	orders    []Order
	lines     []Line
	shipments []Shipment
	cleared   []int64
}

func (t *memTx) step(ctx context.Context, name string) error {
	if t.store.block == name {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.store.failOn[name]
}

func (t *memTx) CartLines(ctx context.Context, customerID int64) ([]cart.Line, error) {
	if err := t.step(ctx, "CartLines"); err != nil {
		return nil, err
	}
	return append([]cart.Line(nil), t.store.cartOf(customerID)...), nil
}

func (t *memTx) CreateOrder(ctx context.Context, o *Order) (int64, error) {
	if err := t.step(ctx, "CreateOrder"); err != nil {
		return 0, err
	}
	t.store.mu.Lock()
	t.store.nextID++
	id := t.store.nextID
	t.store.mu.Unlock()

	stored := *o
	stored.ID = id
	t.orders = append(t.orders, stored)
	return id, nil
}

func (t *memTx) CreateLines(ctx context.Context, lines []Line) error {
	if err := t.step(ctx, "CreateLines"); err != nil {
		return err
	}
	t.lines = append(t.lines, lines...)
	return nil
}

func (t *memTx) CreateShipment(ctx context.Context, s *Shipment) error {
	if err := t.step(ctx, "CreateShipment"); err != nil {
		return err
	}
	t.shipments = append(t.shipments, *s)
	return nil
}

func (t *memTx) ClearCart(ctx context.Context, customerID int64) error {
	if err := t.step(ctx, "ClearCart"); err != nil {
		return err
	}
	t.cleared = append(t.cleared, customerID)
	return nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []Placed
	err    error
}

func (m *mockPublisher) OrderPlaced(_ context.Context, e Placed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

// blockingPublisher waits until its context is done.
type blockingPublisher struct{}

func (blockingPublisher) OrderPlaced(ctx context.Context, _ Placed) error {
	<-ctx.Done()
	return ctx.Err()
}

// --- Helpers ---

var (
	testNow   = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	customer7 = auth.Principal{CustomerID: 7, Email: "ana@example.com", Role: auth.RoleClient}
)

func newTestService(t *testing.T, store Store, pub Publisher) *Service {
	t.Helper()
	svc, err := NewService(store, pub, Config{Timeout: time.Second})
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	return svc
}

func seedCart(store *memStore, customerID int64) {
	store.carts[customerID] = []cart.Line{
		{ID: 1, CustomerID: customerID, ProductID: 1, Weight: "250g", Quantity: 2, Price: decimal.RequireFromString("12.50")},
		{ID: 2, CustomerID: customerID, ProductID: 2, Weight: "1kg", Quantity: 1, Price: decimal.RequireFromString("7.00")},
	}
}

func placeReq() PlaceOrderRequest {
	return PlaceOrderRequest{
		Caller:          customer7,
		CustomerID:      7,
		DeliveryAddress: "12 rue des Lilas, Lyon",
		Carrier:         "Colissimo",
		PaymentMethod:   "card",
	}
}

// --- Tests ---

func TestPlaceOrder_Success(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	pub := &mockPublisher{}
	svc := newTestService(t, store, pub)

	conf, err := svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("32.00").Equal(conf.Total))
	assert.Equal(t, testNow.Add(5*24*time.Hour), conf.EstimatedDelivery)

	require.Len(t, store.orders, 1)
	o := store.orders[0]
	assert.Equal(t, conf.OrderID, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "card", o.PaymentMethod)
	assert.True(t, decimal.RequireFromString("32.00").Equal(o.Total))

	require.Len(t, store.lines, 2)
	assert.Equal(t, int64(1), store.lines[0].ProductID)
	assert.Equal(t, 2, store.lines[0].Quantity)
	assert.Equal(t, "250g", store.lines[0].Weight)
	assert.True(t, decimal.RequireFromString("12.50").Equal(store.lines[0].UnitPrice))

	require.Len(t, store.shipments, 1)
	sh := store.shipments[0]
	assert.Equal(t, conf.OrderID, sh.OrderID)
	assert.Equal(t, "Colissimo", sh.Carrier)
	assert.Nil(t, sh.ShipDate)
	assert.Equal(t, o.CreatedAt.Add(5*24*time.Hour), sh.EstimatedDelivery)

	assert.Empty(t, store.cartOf(7))

	require.Len(t, pub.events, 1)
	assert.Equal(t, conf.OrderID, pub.events[0].OrderID)
	assert.Len(t, pub.events[0].Lines, 2)
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	store := newMemStore()
	pub := &mockPublisher{}
	svc := newTestService(t, store, pub)

	_, err := svc.PlaceOrder(context.Background(), placeReq())
	require.ErrorIs(t, err, apperr.EmptyCart)
	assert.Empty(t, store.orders)
	assert.Empty(t, store.shipments)
	assert.Empty(t, pub.events)
}

func TestPlaceOrder_Validation(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	svc := newTestService(t, store, nil)

	tests := []struct {
		name   string
		modify func(*PlaceOrderRequest)
		kind   apperr.Kind
	}{
		{"missing address", func(r *PlaceOrderRequest) { r.DeliveryAddress = "  " }, apperr.Validation},
		{"missing carrier", func(r *PlaceOrderRequest) { r.Carrier = "" }, apperr.Validation},
		{"missing customer", func(r *PlaceOrderRequest) { r.CustomerID = 0 }, apperr.Validation},
		{"other customer", func(r *PlaceOrderRequest) { r.Caller = auth.Principal{CustomerID: 8, Role: auth.RoleClient} }, apperr.Forbidden},
		{"anonymous", func(r *PlaceOrderRequest) { r.Caller = auth.Principal{} }, apperr.Unauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := placeReq()
			tt.modify(&req)
			_, err := svc.PlaceOrder(context.Background(), req)
			require.ErrorIs(t, err, tt.kind)
		})
	}

	assert.Len(t, store.cartOf(7), 2)
	assert.Empty(t, store.orders)
}

func TestPlaceOrder_AdminForCustomer(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	svc := newTestService(t, store, nil)

	req := placeReq()
	req.Caller = auth.Principal{CustomerID: 1, Role: auth.RoleAdmin}
	_, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, store.cartOf(7))
}

func TestPlaceOrder_InvalidCartLine(t *testing.T) {
	store := newMemStore()
	store.carts[7] = []cart.Line{{CustomerID: 7, ProductID: 3, Quantity: 0, Price: decimal.NewFromInt(1)}}
	svc := newTestService(t, store, nil)

	_, err := svc.PlaceOrder(context.Background(), placeReq())
	require.ErrorIs(t, err, apperr.Validation)
	assert.Empty(t, store.orders)
	assert.Len(t, store.cartOf(7), 1)
}

func TestPlaceOrder_RollbackOnFailure(t *testing.T) {
	for _, step := range []string{"CartLines", "CreateOrder", "CreateLines", "CreateShipment", "ClearCart"} {
		t.Run(step, func(t *testing.T) {
			store := newMemStore()
			seedCart(store, 7)
			store.failOn[step] = errors.New("connection reset")
			pub := &mockPublisher{}
			svc := newTestService(t, store, pub)

			conf, err := svc.PlaceOrder(context.Background(), placeReq())
			require.Error(t, err)
			assert.Nil(t, conf)
			assert.Equal(t, apperr.Storage, apperr.KindOf(err))

			assert.Empty(t, store.orders)
			assert.Empty(t, store.lines)
			assert.Empty(t, store.shipments)
			assert.Len(t, store.cartOf(7), 2)
			assert.Empty(t, pub.events)
		})
	}
}

func TestPlaceOrder_Timeout(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	store.block = "CreateShipment"
	svc, err := NewService(store, nil, Config{Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = svc.PlaceOrder(context.Background(), placeReq())
	require.ErrorIs(t, err, apperr.Storage)
	assert.True(t, apperr.Timeout(err))
	assert.Empty(t, store.orders)
	assert.Len(t, store.cartOf(7), 2)
}

func TestPlaceOrder_PublishFailureKeepsOrder(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	svc := newTestService(t, store, &mockPublisher{err: errors.New("broker down")})

	conf, err := svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)
	assert.NotZero(t, conf.OrderID)
	assert.Len(t, store.orders, 1)
}

func TestPlaceOrder_SlowPublisherDoesNotHoldConfirmation(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	svc, err := NewService(store, blockingPublisher{}, Config{
		Timeout:        time.Second,
		PublishTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	conf, err := svc.PlaceOrder(ctx, placeReq())
	require.NoError(t, err)
	assert.NotZero(t, conf.OrderID)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, store.orders, 1)
}

func TestPlaceOrder_TimestampsInMicroseconds(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	svc := newTestService(t, store, nil)
	svc.now = func() time.Time { return testNow.Add(123456789 * time.Nanosecond) }

	conf, err := svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)

	want := testNow.Add(123456 * time.Microsecond)
	assert.Equal(t, want, conf.CreatedAt)
	assert.Equal(t, want.Add(DefaultLeadTime), conf.EstimatedDelivery)
	require.Len(t, store.orders, 1)
	assert.Equal(t, want, store.orders[0].CreatedAt)
}

func TestPlaceOrder_ConcurrentSameCustomer(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	svc := newTestService(t, store, nil)

	const n = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, n)
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(context.Background(), placeReq())
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
	assert.Len(t, store.orders, 1)
}

func TestHistory(t *testing.T) {
	store := newMemStore()
	seedCart(store, 7)
	svc := newTestService(t, store, nil)

	_, err := svc.History(context.Background(), customer7, 7)
	require.ErrorIs(t, err, apperr.NotFound)

	_, err = svc.PlaceOrder(context.Background(), placeReq())
	require.NoError(t, err)

	rows, err := svc.History(context.Background(), customer7, 7)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = svc.History(context.Background(), customer7, 0)
	require.ErrorIs(t, err, apperr.Validation)

	_, err = svc.History(context.Background(), auth.Principal{CustomerID: 9, Role: auth.RoleClient}, 7)
	require.ErrorIs(t, err, apperr.Forbidden)
}
