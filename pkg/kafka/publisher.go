package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/packfinderz-inventory/pkg/config"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/registry"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes outbox messages to Kafka. Messages are keyed by aggregate
// id and hashed to partitions, so one reservation's events stay ordered.
type Publisher struct {
	writer messageWriter
}

// NewPublisher builds a synchronous writer over the configured brokers. The
// topic comes from each message.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}), nil
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, msg outbox.Message) error {
	if strings.TrimSpace(msg.Topic) == "" {
		return registry.NewNonRetryableError(errors.New("kafka topic is required"))
	}
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for key, value := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
	})
	if err != nil {
		return classify(msg.Topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// classify marks broker errors that no retry can fix.
func classify(topic string, err error) error {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				err = e
				break
			}
		}
	}
	wrapped := fmt.Errorf("kafka write to %s: %w", topic, err)
	var kerr kafka.Error
	if errors.As(err, &kerr) && !kerr.Temporary() {
		return registry.NewNonRetryableError(wrapped)
	}
	return wrapped
}
