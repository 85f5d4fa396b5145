package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox"
	"github.com/angelmondragon/packfinderz-inventory/pkg/outbox/registry"
)

// EventPublisher sends outbox messages to Pub/Sub topics, caching one
// publisher per topic.
type EventPublisher struct {
	client *Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewEventPublisher(client *Client) (*EventPublisher, error) {
	if client == nil || client.client == nil {
		return nil, errors.New("pubsub client required")
	}
	return &EventPublisher{client: client, publishers: map[string]*pubsub.Publisher{}}, nil
}

// Publish blocks until Pub/Sub acknowledges the message. Unknown topics and
// permission failures are reported as non-retryable.
func (p *EventPublisher) Publish(ctx context.Context, msg outbox.Message) error {
	pub := p.publisher(msg.Topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", msg.Topic))
	}
	result := pub.Publish(ctx, &pubsub.Message{Data: msg.Data, Attributes: msg.Attributes})
	if _, err := result.Get(ctx); err != nil {
		switch status.Code(err) {
		case codes.NotFound, codes.PermissionDenied, codes.InvalidArgument:
			return registry.NewNonRetryableError(fmt.Errorf("publish to %s: %w", msg.Topic, err))
		}
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes and stops every cached publisher.
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, pub := range p.publishers {
		pub.Stop()
		delete(p.publishers, topic)
	}
	return nil
}

func (p *EventPublisher) publisher(topic string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.publishers[topic]; ok {
		return pub
	}
	pub := p.client.Publisher(topic)
	if pub == nil {
		return nil
	}
	p.publishers[topic] = pub
	return pub
}
