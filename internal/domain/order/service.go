package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/epicerie/internal/domain/apperr"
	"github.com/xenking/epicerie/internal/domain/auth"
	"github.com/xenking/epicerie/internal/domain/cart"
)

const (
	// DefaultLeadTime is the delay between placement and estimated delivery.
	DefaultLeadTime = 5 * 24 * time.Hour
	// DefaultTimeout bounds the placement transaction.
	DefaultTimeout = 5 * time.Second
	// DefaultPublishTimeout bounds the order.placed announcement after commit.
	DefaultPublishTimeout = time.Second
)

// PlaceOrderRequest holds the input for placing an order from a cart.
type PlaceOrderRequest struct {
	Caller          auth.Principal
	CustomerID      int64
	DeliveryAddress string
	Carrier         string
	PaymentMethod   string
}

// Confirmation is returned for a committed order.
type Confirmation struct {
	OrderID           int64
	Total             decimal.Decimal
	CreatedAt         time.Time
	EstimatedDelivery time.Time
}

// Config tunes the order Service. Zero values select the defaults.
type Config struct {
	Timeout        time.Duration
	LeadTime       time.Duration
	PublishTimeout time.Duration
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service encapsulates order placement business logic.
type Service struct {
	store     Store
	publisher Publisher
	timeout   time.Duration
	leadTime  time.Duration
	pubWait   time.Duration
	now       func() time.Time

	tracer trace.Tracer
	placed metric.Int64Counter
	failed metric.Int64Counter
}

// NewService creates an order Service. publisher may be nil.
func NewService(store Store, publisher Publisher, cfg Config) (*Service, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = DefaultLeadTime
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}

	meter := cfg.MeterProvider.Meter("github.com/xenking/epicerie/internal/domain/order")
	placed, err := meter.Int64Counter("epicerie.orders.placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("epicerie.orders.failed",
		metric.WithDescription("Order placements that did not commit, by error kind"),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:     store,
		publisher: publisher,
		timeout:   cfg.Timeout,
		leadTime:  cfg.LeadTime,
		pubWait:   cfg.PublishTimeout,
		now:       time.Now,
		tracer:    cfg.TracerProvider.Tracer("github.com/xenking/epicerie/internal/domain/order"),
		placed:    placed,
		failed:    failed,
	}, nil
}

// PlaceOrder turns the cart of req.CustomerID into an order, its lines and
// a shipment, then empties the cart. Either all of it commits or none of it
// does.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (_ *Confirmation, rerr error) {
	const op = "order.PlaceOrder"

	ctx, span := s.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.Int64("customer.id", req.CustomerID)),
	)
	defer func() {
		if rerr != nil {
			kind := apperr.KindOf(rerr)
			span.RecordError(rerr)
			span.SetStatus(codes.Error, kind.String())
			s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
		}
		span.End()
	}()

	if err := validate(req); err != nil {
		return nil, err
	}
	if err := auth.AuthorizeCustomer(req.Caller, req.CustomerID); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		conf  Confirmation
		lines []Line
	)
	err := s.store.WithCustomerTx(txCtx, req.CustomerID, func(ctx context.Context, tx Tx) error {
		cartLines, err := tx.CartLines(ctx, req.CustomerID)
		if err != nil {
			return apperr.Wrap(apperr.Storage, op, err)
		}
		if len(cartLines) == 0 {
			return apperr.New(apperr.EmptyCart, op, "cart is empty")
		}

		total, err := orderTotal(cartLines)
		if err != nil {
			return err
		}

		// Timestamps are stored with microsecond precision.
		now := s.now().UTC().Truncate(time.Microsecond)
		orderID, err := tx.CreateOrder(ctx, &Order{
			CustomerID:    req.CustomerID,
			Total:         total,
			Status:        StatusPending,
			PaymentMethod: strings.TrimSpace(req.PaymentMethod),
			CreatedAt:     now,
		})
		if err != nil {
			return apperr.Wrap(apperr.Storage, op, err)
		}

		lines = make([]Line, len(cartLines))
		for i, cl := range cartLines {
			lines[i] = Line{
				OrderID:   orderID,
				ProductID: cl.ProductID,
				Quantity:  cl.Quantity,
				Weight:    cl.Weight,
				UnitPrice: cl.Price,
			}
		}
		if err := tx.CreateLines(ctx, lines); err != nil {
			return apperr.Wrap(apperr.Storage, op, err)
		}

		estimated := now.Add(s.leadTime)
		if err := tx.CreateShipment(ctx, &Shipment{
			OrderID:           orderID,
			DeliveryAddress:   strings.TrimSpace(req.DeliveryAddress),
			Carrier:           strings.TrimSpace(req.Carrier),
			EstimatedDelivery: estimated,
		}); err != nil {
			return apperr.Wrap(apperr.Storage, op, err)
		}

		if err := tx.ClearCart(ctx, req.CustomerID); err != nil {
			return apperr.Wrap(apperr.Storage, op, err)
		}

		conf = Confirmation{
			OrderID:           orderID,
			Total:             total,
			CreatedAt:         now,
			EstimatedDelivery: estimated,
		}
		return nil
	})
	if err != nil {
		if apperr.Timeout(err) {
			return nil, &apperr.Error{Kind: apperr.Storage, Op: op, Msg: "order placement timed out", Err: err}
		}
		return nil, apperr.Wrap(apperr.Storage, op, err)
	}

	span.SetAttributes(attribute.Int64("order.id", conf.OrderID))
	s.placed.Add(ctx, 1)

	if s.publisher != nil {
		s.publish(ctx, span, Placed{
			OrderID:         conf.OrderID,
			CustomerID:      req.CustomerID,
			Total:           conf.Total,
			PaymentMethod:   req.PaymentMethod,
			Carrier:         req.Carrier,
			DeliveryAddress: req.DeliveryAddress,
			Lines:           lines,
			CreatedAt:       conf.CreatedAt,
		})
	}

	return &conf, nil
}

// publish announces a committed order. It never outlives pubWait, even when
// the caller's context has no deadline, and its failure is only recorded.
func (s *Service) publish(ctx context.Context, span trace.Span, e Placed) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.pubWait)
	defer cancel()

	if err := s.publisher.OrderPlaced(ctx, e); err != nil {
		span.AddEvent("publish failed", trace.WithAttributes(attribute.String("error", err.Error())))
	}
}

// History returns the order lines of customerID. A customer without orders
// yields apperr.NotFound.
func (s *Service) History(ctx context.Context, caller auth.Principal, customerID int64) ([]HistoryRow, error) {
	const op = "order.History"

	if customerID <= 0 {
		return nil, apperr.New(apperr.Validation, op, "user id is required")
	}
	if err := auth.AuthorizeCustomer(caller, customerID); err != nil {
		return nil, err
	}

	rows, err := s.store.History(ctx, customerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, op, err)
	}
	if len(rows) == 0 {
		return nil, apperr.New(apperr.NotFound, op, "no orders found")
	}
	return rows, nil
}

func validate(req PlaceOrderRequest) error {
	const op = "order.PlaceOrder"

	if req.CustomerID <= 0 {
		return apperr.New(apperr.Validation, op, "customer id is required")
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return apperr.New(apperr.Validation, op, "delivery address is required")
	}
	if strings.TrimSpace(req.Carrier) == "" {
		return apperr.New(apperr.Validation, op, "carrier is required")
	}
	return nil
}

// orderTotal sums price × quantity over lines, rejecting lines that could
// not have been stored through the cart service.
func orderTotal(lines []cart.Line) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			return decimal.Zero, apperr.Errorf(apperr.Validation, "order.PlaceOrder",
				"quantity must be greater than 0 for product %d", l.ProductID)
		}
		if l.Price.IsNegative() {
			return decimal.Zero, apperr.Errorf(apperr.Validation, "order.PlaceOrder",
				"negative price for product %d", l.ProductID)
		}
		total = total.Add(l.Total())
	}
	return total, nil
}
