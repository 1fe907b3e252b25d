package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 64

var (
	errNilRedisClient = errors.New("pubsub: redis client is nil")
	errRedisClosed    = errors.New("pubsub: redis channel closed")
)

// RedisProvider fans authorization results out across replicas over Redis
// pub/sub.
type RedisProvider struct {
	client redis.UniversalClient
}

func NewRedisProvider(client redis.UniversalClient) (*RedisProvider, error) {
	if client == nil {
		return nil, errNilRedisClient
	}
	return &RedisProvider{client: client}, nil
}

func (p *RedisProvider) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// Subscribe waits for the subscription confirmation so a Publish issued after
// it returns is never missed. The subscription outlives ctx until Close.
func (p *RedisProvider) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := p.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &redisSubscription{
		ps:     ps,
		cancel: cancel,
		out:    make(chan Message, subscriptionBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(runCtx, ps.Channel())
	return sub, nil
}

type redisSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	out    chan Message
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

func (s *redisSubscription) pump(ctx context.Context, in <-chan *redis.Message) {
	defer close(s.done)
	defer close(s.out)
	for {
		var msg *redis.Message
		var ok bool
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-in:
		}
		if !ok {
			s.fail(errRedisClosed)
			return
		}
		if msg == nil {
			continue
		}
		select {
		case s.out <- Message{Payload: []byte(msg.Payload)}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *redisSubscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Done() <-chan struct{} { return s.done }

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.ps.Close()
	})
	return s.closeErr
}
