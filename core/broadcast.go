package core

import (
	"sync"
)

// Broadcast fans every published value out to all subscribers. Each
// subscriber has its own buffer, so a slow or abandoned subscriber never blocks
// the publisher or the other subscribers; values that overflow a full buffer
// are dropped for that subscriber only.
type Broadcast[T any] struct {
	mu     sync.Mutex
	subs   map[*Subscription[T]]struct{}
	replay []T
	size   int
	buffer int
	closed bool
}

type Subscription[T any] struct {
	b       *Broadcast[T]
	ch      chan T
	dropped int
}

// NewBroadcast creates a broadcast that remembers the last replay values for
// new subscribers, and buffers up to buffer values per subscriber.
func NewBroadcast[T any](replay, buffer int) *Broadcast[T] {
	return &Broadcast[T]{
		subs:   make(map[*Subscription[T]]struct{}),
		replay: make([]T, 0, replay),
		size:   replay,
		buffer: buffer,
	}
}

func (b *Broadcast[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if b.size > 0 {
		if len(b.replay) == b.size {
			copy(b.replay, b.replay[1:])
			b.replay = b.replay[:b.size-1]
		}
		b.replay = append(b.replay, v)
	}
	for sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			sub.dropped++
		}
	}
}

// Subscribe registers a new subscriber. With replay set, the subscriber first
// receives the most recently published values.
func (b *Broadcast[T]) Subscribe(replay bool) *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription[T]{
		b:  b,
		ch: make(chan T, b.buffer+b.size),
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	if replay {
		for _, v := range b.replay {
			sub.ch <- v
		}
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close closes every subscription. Later publishes are ignored.
func (b *Broadcast[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	clear(b.subs)
}

func (b *Broadcast[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// C returns the channel values are delivered on. It is closed when the
// subscription or the broadcast is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Dropped returns the number of values lost because the buffer was full.
func (s *Subscription[T]) Dropped() int {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.dropped
}

func (s *Subscription[T]) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}
