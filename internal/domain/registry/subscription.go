package registry

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/post-feed-service/internal/domain/event"
)

// ErrSubscriptionClosed is returned by Next once the subscription was removed from the hub.
var ErrSubscriptionClosed = errors.New("subscription closed")

type enqueueResult int

const (
	enqueued enqueueResult = iota
	rejectedClosed
	rejectedOverflow
)

// Subscription is a live registration of one consumer on one topic.
//
// [MAILBOX]
// Each subscription owns an independent FIFO queue. Publishers append to it
// without waiting for the consumer, so a stalled consumer never delays the
// publisher or its siblings. The queue is unbounded unless the hub was
// configured with a backlog limit.
//
// The sequence is lazy, infinite and non-restartable: Next and All must be
// driven by a single consumer goroutine.
type Subscription struct {
	id        uuid.UUID
	topic     string
	createdAt time.Time

	// [CONCURRENCY_CONTROL]
	// Guards queue and closed. Owned by this subscription only, so the hub
	// never serializes subscribers behind each other.
	mu     sync.Mutex
	queue  []event.Eventer
	closed bool

	limit  int
	policy OverflowPolicy

	// wake carries at most one pending signal; a publisher that appends while
	// the consumer is between its queue check and its wait leaves the token here.
	wake   chan struct{}
	doneCh chan struct{}

	closeOnce sync.Once
	dropped   atomic.Uint64
}

func newSubscription(topic string, limit int, policy OverflowPolicy) *Subscription {
	return &Subscription{
		id:        uuid.New(),
		topic:     topic,
		createdAt: time.Now(),
		limit:     limit,
		policy:    policy,
		wake:      make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
}

func (s *Subscription) ID() uuid.UUID        { return s.id }
func (s *Subscription) Topic() string        { return s.topic }
func (s *Subscription) CreatedAt() time.Time { return s.createdAt }

// Done is closed when the subscription is removed from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.doneCh }

// Dropped reports how many events the drop-oldest policy discarded.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Len reports the current backlog.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next blocks until an event is available, the subscription is closed or ctx ends.
func (s *Subscription) Next(ctx context.Context) (event.Eventer, error) {
	for {
		if ev, ok, closed := s.pop(); ok {
			return ev, nil
		} else if closed {
			return nil, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.wake:
		case <-s.doneCh:
		}
	}
}

// TryNext returns the head of the queue without waiting.
func (s *Subscription) TryNext() (event.Eventer, bool) {
	ev, ok, _ := s.pop()
	return ev, ok
}

// All adapts Next into a range-over-func sequence. It stops on close or ctx end.
func (s *Subscription) All(ctx context.Context) iter.Seq[event.Eventer] {
	return func(yield func(event.Eventer) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (s *Subscription) pop() (ev event.Eventer, ok bool, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, true
	}
	if len(s.queue) == 0 {
		return nil, false, false
	}

	ev = s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return ev, true, false
}

// enqueue appends ev unless the subscription is closed or its backlog policy rejects it.
func (s *Subscription) enqueue(ev event.Eventer) enqueueResult {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return rejectedClosed
	}

	if s.limit > 0 && len(s.queue) >= s.limit {
		switch s.policy {
		case OverflowDisconnect:
			s.mu.Unlock()
			return rejectedOverflow
		default:
			// [DROP_OLDEST] Keep the newest window of events.
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.dropped.Add(1)
		}
	}

	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return enqueued
}

// close marks the subscription dead and releases its backlog. Idempotent.
func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()

		close(s.doneCh)
	})
}
