package proactive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher publishes queued notifications to a Kafka topic so an
// external push integration (mobile push, a separate TTS worker) can
// subscribe without polling /notifications.
type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaPublisher builds a publisher over the given broker list. Returns
// an error if brokers is empty so callers can skip wiring it rather than
// hand the Scheduler a non-functional callback.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers configured")
	}
	if topic == "" {
		topic = "psychoportal.notifications"
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Balancer: &kafka.LeastBytes{},
		},
		topic: topic,
	}, nil
}

// Publish matches the Callback signature; it JSON-encodes n and writes it
// keyed by notification id so consumers can dedupe/compact by key. Publish
// errors are swallowed; a dropped push notification must never block or
// fail the scheduler tick that produced it.
func (p *KafkaPublisher) Publish(n Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	_ = p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: p.topic,
		Key:   []byte(n.ID),
		Value: payload,
	})
}

// Close flushes and closes the underlying Kafka writer connection(s).
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
