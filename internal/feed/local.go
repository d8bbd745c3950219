package feed

import (
	"context"
	"sync"
)

const localBuffer = 256

// LocalBus is an in-process Bus. It is used when no Redis server is
// configured, which limits live updates to writes made by this process.
type LocalBus struct {
	mu     sync.Mutex
	subs   map[string]map[*localSub]struct{}
	closed bool
}

// NewLocalBus returns an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: map[string]map[*localSub]struct{}{}}
}

type localSub struct {
	bus        *LocalBus
	collection string
	ch         chan Change
	once       sync.Once
	err        error
}

func (s *localSub) Changes() <-chan Change { return s.ch }

func (s *localSub) Err() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.err
}

func (s *localSub) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.dropLocked(s, nil)
	return nil
}

// dropLocked detaches s and closes its channel. Callers hold b.mu.
func (b *LocalBus) dropLocked(s *localSub, err error) {
	s.once.Do(func() {
		delete(b.subs[s.collection], s)
		s.err = err
		close(s.ch)
	})
}

// Publish delivers c to every subscriber of its collection. A subscriber
// whose buffer is full is terminated with ErrSlowConsumer rather than
// blocking the writer or reordering its stream.
func (b *LocalBus) Publish(_ context.Context, c Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for s := range b.subs[c.Collection] {
		select {
		case s.ch <- c:
		default:
			b.dropLocked(s, ErrSlowConsumer)
		}
	}
	return nil
}

// Subscribe opens a stream for collection.
func (b *LocalBus) Subscribe(_ context.Context, collection string) (BusSubscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	s := &localSub{bus: b, collection: collection, ch: make(chan Change, localBuffer)}
	if b.subs[collection] == nil {
		b.subs[collection] = map[*localSub]struct{}{}
	}
	b.subs[collection][s] = struct{}{}
	return s, nil
}

// Close ends every open stream with ErrBusClosed.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			b.dropLocked(s, ErrBusClosed)
		}
	}
	return nil
}
