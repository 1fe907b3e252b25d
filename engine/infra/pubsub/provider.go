package pubsub

import "context"

// Message is one payload published on a channel.
type Message struct {
	Payload []byte
}

// Subscription streams messages until Close or until the backing
// connection ends. Close is idempotent.
type Subscription interface {
	Messages() <-chan Message
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Provider fans messages out across server instances. The in-memory provider
// only reaches subscribers in the same process.
type Provider interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}
