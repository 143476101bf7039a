package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/vendora/storefront/internal/domain/order"
)

// publishTimeout bounds a single broker write so a slow broker cannot stall
// the checkout path it is called from.
const publishTimeout = 5 * time.Second

var _ order.EventSink = (*KafkaSink)(nil)

// KafkaSink publishes order events to a Kafka topic, keyed by order ID so all
// events of one order land on the same partition in order.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// OrderCreated publishes an order.created event.
func (s *KafkaSink) OrderCreated(ctx context.Context, o *order.Order) error {
	ev := newEvent(EventOrderCreated, o, map[string]any{
		"total":    o.Total.String(),
		"discount": o.Discount.String(),
		"status":   string(o.Status),
		"items":    len(o.Items),
	})
	return s.publish(ctx, o.ID, ev)
}

// StatusChanged publishes an order.status_changed event.
func (s *KafkaSink) StatusChanged(ctx context.Context, o *order.Order, change order.StatusChange) error {
	ev := newEvent(EventOrderStatusChanged, o, map[string]any{
		"from":  string(change.From),
		"to":    string(change.To),
		"note":  change.Note,
		"actor": change.Actor,
	})
	return s.publish(ctx, o.ID, ev)
}

func (s *KafkaSink) publish(ctx context.Context, key string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  ev.CreatedAt,
	}); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
