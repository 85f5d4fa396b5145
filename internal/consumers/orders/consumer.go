package orders

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// Consumer pulls order events from the orders subscription.
type Consumer struct {
	subscription *pubsub.Subscriber
	handler      *Handler
}

func NewConsumer(subscription *pubsub.Subscriber, handler *Handler) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("orders subscription required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler required")
	}
	return &Consumer{subscription: subscription, handler: handler}, nil
}

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		outcome := c.handler.Handle(ctx, Message{ID: msg.ID, Attributes: msg.Attributes, Data: msg.Data})
		if outcome == OutcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
