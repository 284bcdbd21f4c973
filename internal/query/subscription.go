package query

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription is a listener registered on one key. Release it with
// Unsubscribe when the consumer goes away.
type Subscription struct {
	id       uuid.UUID
	key      Key
	client   *Client
	listener Listener

	mu    sync.Mutex
	queue []State
	wake  chan struct{}
	done  chan struct{}

	active   atomic.Bool
	once     sync.Once
	stopPoll context.CancelFunc
}

func newSubscription(c *Client, key Key, fn Listener) *Subscription {
	s := &Subscription{
		id:       uuid.New(),
		key:      key,
		client:   c,
		listener: fn,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.active.Store(true)
	go s.run()
	return s
}

// ID returns the subscription's unique id.
func (s *Subscription) ID() uuid.UUID {
	return s.id
}

// Key returns the subscribed key.
func (s *Subscription) Key() Key {
	return s.key
}

// Active reports whether the subscription still receives updates.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Unsubscribe stops delivery and polling. Safe to call more than once and
// from inside the listener.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		if s.client != nil {
			s.client.removeSubscription(s)
		}
		if s.stopPoll != nil {
			s.stopPoll()
		}
		close(s.done)
	})
}

// enqueue queues st for delivery. Called with the client lock held so that
// queue order matches the order of state changes.
func (s *Subscription) enqueue(st State) {
	if !s.active.Load() {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, st)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run delivers queued states one at a time until the subscription ends.
func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			st := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if !s.active.Load() {
				return
			}
			s.listener(st)
		}
	}
}
