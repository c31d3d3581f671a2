package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/wellywell/skborders/internal/types"
	"go.opentelemetry.io/otel/propagation"
)

// KafkaPublisher delivers completed orders to the downstream topic, keyed by
// the order's correlation UUID.
type KafkaPublisher struct {
	client *kgo.Client
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProduceRequestTimeout(10 * time.Second),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID("skborders"),
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client %w", err)
	}
	return &KafkaPublisher{client: client}, nil
}

func (p *KafkaPublisher) Deliver(ctx context.Context, d types.Delivery) error {
	value, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	record := &kgo.Record{
		Key:     []byte(d.UUID.String()),
		Value:   value,
		Headers: traceHeaders(ctx),
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish order %d: %w", d.OrderID, err)
	}
	return nil
}

func (p *KafkaPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

func traceHeaders(ctx context.Context) []kgo.RecordHeader {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)

	traceparent, ok := carrier["traceparent"]
	if !ok {
		return nil
	}
	return []kgo.RecordHeader{{Key: "traceparent", Value: []byte(traceparent)}}
}

// LogPublisher only logs deliveries. Used when no brokers are configured.
type LogPublisher struct{}

func (LogPublisher) Deliver(ctx context.Context, d types.Delivery) error {
	logger.WithFields(logger.Fields{
		"order_id": d.OrderID,
		"uuid":     d.UUID,
		"files":    len(d.FileLinks),
	}).Info("Order ready for downstream, no broker configured")
	return nil
}
