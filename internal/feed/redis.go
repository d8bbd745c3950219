package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisBus is a Bus backed by Redis Pub/Sub so that every server instance
// sees writes made by the others. Redis delivers messages of one channel
// in publish order.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus wraps an existing client.
func NewRedisBus(rdb *redis.Client) *RedisBus { return &RedisBus{rdb: rdb} }

// Publish encodes c as JSON and publishes it on the collection's channel.
func (b *RedisBus) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelName(c.Collection), payload).Err()
}

// Subscribe opens a Pub/Sub subscription and waits for Redis to confirm it,
// so that no change published after Subscribe returns can be missed.
func (b *RedisBus) Subscribe(ctx context.Context, collection string) (BusSubscription, error) {
	ps := b.rdb.Subscribe(ctx, channelName(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("feed: subscribe %s: %w", collection, err)
	}
	s := &redisSub{ps: ps, ch: make(chan Change, localBuffer)}
	go s.pump()
	return s, nil
}

type redisSub struct {
	ps     *redis.PubSub
	ch     chan Change
	closed atomic.Bool
	mu     sync.Mutex
	err    error
}

func (s *redisSub) Changes() <-chan Change { return s.ch }

func (s *redisSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSub) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.ps.Close()
}

// pump forwards messages until the subscription is closed or fails. The
// first receive or decode error is terminal.
func (s *redisSub) pump() {
	defer close(s.ch)
	ctx := context.Background()
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			if !s.closed.Load() {
				s.fail(fmt.Errorf("feed: receive: %w", err))
			}
			return
		}
		var c Change
		if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
			s.fail(fmt.Errorf("feed: decode: %w", err))
			_ = s.Close()
			return
		}
		select {
		case s.ch <- c:
		default:
			s.fail(ErrSlowConsumer)
			_ = s.Close()
			return
		}
	}
}

func (s *redisSub) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
