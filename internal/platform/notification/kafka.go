package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the subset of *kafka.Writer used by KafkaPublisher.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes notifications to a single topic.
type KafkaPublisher struct {
	writer  KafkaWriter
	topic   string
	timeout time.Duration
	closed  bool
}

// NewKafkaPublisher creates a writer that balances messages across the
// topic's partitions by bytes written.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return NewKafkaPublisherWithWriter(w, topic)
}

func NewKafkaPublisherWithWriter(w KafkaWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, timeout: 10 * time.Second}
}

func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	if p.closed {
		return errPublisherClosed
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.closed = true
	return p.writer.Close()
}
