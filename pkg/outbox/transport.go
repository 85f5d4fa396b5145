package outbox

import "context"

// Message is one outbox row shaped for a broker. Key carries the aggregate id
// so brokers that partition by key keep a reservation's events in order.
type Message struct {
	Topic      string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// Publisher delivers a message and returns once the broker acknowledged it.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}
