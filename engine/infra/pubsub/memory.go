package pubsub

import (
	"context"
	"sync"
)

// MemoryProvider delivers messages between goroutines of one process. It is
// used when no Redis is configured.
type MemoryProvider struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySubscription]struct{}
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{subs: make(map[string]map[*memorySubscription]struct{})}
}

func (p *MemoryProvider) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{
		provider: p,
		channel:  channel,
		messages: make(chan Message, subscriptionBuffer),
		done:     make(chan struct{}),
	}
	p.mu.Lock()
	if p.subs[channel] == nil {
		p.subs[channel] = make(map[*memorySubscription]struct{})
	}
	p.subs[channel][sub] = struct{}{}
	p.mu.Unlock()
	return sub, nil
}

// Publish never blocks; a subscriber with a full buffer misses the message.
func (p *MemoryProvider) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for sub := range p.subs[channel] {
		copied := make([]byte, len(payload))
		copy(copied, payload)
		select {
		case sub.messages <- Message{Payload: copied}:
		default:
		}
	}
	return nil
}

func (p *MemoryProvider) remove(sub *memorySubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs[sub.channel], sub)
	if len(p.subs[sub.channel]) == 0 {
		delete(p.subs, sub.channel)
	}
}

type memorySubscription struct {
	provider *MemoryProvider
	channel  string
	messages chan Message
	done     chan struct{}
	once     sync.Once
}

func (s *memorySubscription) Messages() <-chan Message { return s.messages }
func (s *memorySubscription) Done() <-chan struct{}    { return s.done }
func (s *memorySubscription) Err() error               { return nil }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.provider.remove(s)
		close(s.done)
	})
	return nil
}
