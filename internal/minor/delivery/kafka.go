// Package delivery holds the outbound transports for minor notifications.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"guardrail/internal/minor"
)

// Producer is the part of *kgo.Client the deliverer uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaDeliverer publishes notifications to a topic keyed by minor account,
// so one account's notifications stay ordered within a partition.
type KafkaDeliverer struct {
	producer Producer
	topic    string
}

func NewKafka(producer Producer, topic string) (*KafkaDeliverer, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	return &KafkaDeliverer{producer: producer, topic: topic}, nil
}

func (d *KafkaDeliverer) Deliver(ctx context.Context, n minor.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	record := &kgo.Record{
		Topic: d.topic,
		Key:   []byte(n.MinorAccountID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "trigger", Value: []byte(n.Trigger)},
			{Key: "correlation_id", Value: []byte(n.CorrelationID)},
		},
	}
	if err := d.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce notification: %w", err)
	}
	return nil
}
