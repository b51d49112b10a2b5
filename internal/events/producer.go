// Package events publishes domain events to Kafka.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/epicerie/internal/domain/order"
)

var _ order.Publisher = (*Producer)(nil)

// Writer is the subset of *kafka.Writer used by Producer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order events to a single topic.
type Producer struct {
	writer     Writer
	topic      string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewProducer creates a Producer writing to topic on brokers.
func NewProducer(brokers []string, topic string) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
	}, topic)
}

// NewProducerWithWriter creates a Producer on top of an existing writer.
func NewProducerWithWriter(w Writer, topic string) *Producer {
	return &Producer{
		writer:     w,
		topic:      topic,
		tracer:     otel.Tracer("github.com/xenking/epicerie/internal/events"),
		propagator: otel.GetTextMapPropagator(),
	}
}

// OrderPlaced publishes e keyed by customer id, so events of one customer
// land on one partition in order.
func (p *Producer) OrderPlaced(ctx context.Context, e order.Placed) error {
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(e.CustomerID, 10)),
		Value: encodePlaced(e),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("order.placed")},
		},
	}

	ctx, span := p.tracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", p.topic),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.Int64("order.id", e.OrderID),
		),
	)
	defer span.End()

	p.propagator.Inject(ctx, headerCarrier{msg: &msg})

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		zctx.From(ctx).Warn("Publish order event",
			zap.Int64("order_id", e.OrderID),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodePlaced(e order.Placed) []byte {
	var enc jx.Encoder
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("type", func(enc *jx.Encoder) { enc.Str("order.placed") })
		enc.Field("order_id", func(enc *jx.Encoder) { enc.Int64(e.OrderID) })
		enc.Field("customer_id", func(enc *jx.Encoder) { enc.Int64(e.CustomerID) })
		enc.Field("total", func(enc *jx.Encoder) { enc.Num(jx.Num(e.Total.StringFixed(2))) })
		enc.Field("payment_method", func(enc *jx.Encoder) { enc.Str(e.PaymentMethod) })
		enc.Field("carrier", func(enc *jx.Encoder) { enc.Str(e.Carrier) })
		enc.Field("delivery_address", func(enc *jx.Encoder) { enc.Str(e.DeliveryAddress) })
		enc.Field("created_at", func(enc *jx.Encoder) { enc.Str(e.CreatedAt.Format(time.RFC3339)) })
		enc.Field("lines", func(enc *jx.Encoder) {
			enc.Arr(func(enc *jx.Encoder) {
				for _, l := range e.Lines {
					enc.Obj(func(enc *jx.Encoder) {
						enc.Field("product_id", func(enc *jx.Encoder) { enc.Int64(l.ProductID) })
						enc.Field("quantity", func(enc *jx.Encoder) { enc.Int(l.Quantity) })
						enc.Field("weight", func(enc *jx.Encoder) { enc.Str(l.Weight) })
						enc.Field("unit_price", func(enc *jx.Encoder) { enc.Num(jx.Num(l.UnitPrice.StringFixed(2))) })
					})
				}
			})
		})
	})
	return enc.Bytes()
}

// headerCarrier adapts kafka headers to the OpenTelemetry propagation API.
type headerCarrier struct {
	msg *kafka.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.msg.Headers))
	for i, h := range c.msg.Headers {
		keys[i] = h.Key
	}
	return keys
}
