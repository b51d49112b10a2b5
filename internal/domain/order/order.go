package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/epicerie/internal/domain/cart"
)

// Status is the lifecycle state of an order.
type Status string

// StatusPending is the state of every newly placed order.
const StatusPending Status = "pending"

// Order is a placed order. It is immutable once created.
type Order struct {
	ID            int64
	CustomerID    int64
	Total         decimal.Decimal
	Status        Status
	PaymentMethod string
	CreatedAt     time.Time
}

// Line is one product of an order. Weight and UnitPrice are copied from
// the cart line the order was built from.
type Line struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	Weight    string
	UnitPrice decimal.Decimal
}

// Shipment is the delivery record of an order. ShipDate stays nil until the
// parcel leaves.
type Shipment struct {
	OrderID           int64
	DeliveryAddress   string
	Carrier           string
	ShipDate          *time.Time
	EstimatedDelivery time.Time
}

// HistoryRow is one order line joined with its order and product, as listed
// in a customer's order history.
type HistoryRow struct {
	OrderID     int64
	Total       decimal.Decimal
	Status      Status
	CreatedAt   time.Time
	ProductID   int64
	ProductName string
	Quantity    int
	Weight      string
	UnitPrice   decimal.Decimal
}

// Tx exposes the statements order placement runs inside one transaction.
type Tx interface {
	CartLines(ctx context.Context, customerID int64) ([]cart.Line, error)
	CreateOrder(ctx context.Context, o *Order) (int64, error)
	CreateLines(ctx context.Context, lines []Line) error
	CreateShipment(ctx context.Context, s *Shipment) error
	ClearCart(ctx context.Context, customerID int64) error
}

// Store defines persistence operations for orders.
type Store interface {
	// WithCustomerTx runs fn in a transaction that holds the lock of
	// customerID until it ends. The transaction commits if fn returns nil
	// and rolls back otherwise.
	WithCustomerTx(ctx context.Context, customerID int64, fn func(ctx context.Context, tx Tx) error) error
	// History returns the order lines of customerID, newest order first.
	History(ctx context.Context, customerID int64) ([]HistoryRow, error)
}

// Placed is the event emitted after an order commits.
type Placed struct {
	OrderID         int64
	CustomerID      int64
	Total           decimal.Decimal
	PaymentMethod   string
	Carrier         string
	DeliveryAddress string
	Lines           []Line
	CreatedAt       time.Time
}

// Publisher announces placed orders to other systems.
type Publisher interface {
	OrderPlaced(ctx context.Context, e Placed) error
}
