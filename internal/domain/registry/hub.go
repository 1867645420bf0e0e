/*
Package registry provides the in-process fan-out of domain events to live subscribers.

Key Architectural Concepts:
  - Topics: every subscription is registered under exactly one topic name and
    receives every event published on that topic after it was registered.
    There is no backfill.
  - Decoupling & Backpressure: each subscription owns an independent mailbox.
    Publish appends to mailboxes and returns; it never waits for a consumer,
    so a slow consumer stalls nobody but itself.
  - Ordering: publishers on one topic are serialized by a per-topic lock, so
    every subscriber observes the same FIFO order of that topic.
  - Concurrency Management: the topic map is the only shared structure. Its
    lock covers map manipulation and snapshotting only; enqueueing happens
    outside of it, under each subscription's own lock.
*/
package registry

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/post-feed-service/internal/domain/event"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

// ErrHubClosed is returned by Subscribe after Shutdown.
var ErrHubClosed = errors.New("hub is shut down")

// Hubber defines the gateway for subscription management and event routing.
type Hubber interface {
	Publish(topic string, ev event.Eventer) int
	Subscribe(topic string) (*Subscription, error)
	Unsubscribe(id uuid.UUID)
	Stats() model.HubStats
	Shutdown()
}

var _ Hubber = (*Hub)(nil)

type hubConfig struct {
	backlogLimit   int
	overflowPolicy OverflowPolicy
}

// topicEntry holds the subscribers of one topic.
type topicEntry struct {
	// publishMu orders concurrent publishers of this topic. It is never held
	// together with Hub.mu.
	publishMu sync.Mutex
	subs      map[uuid.UUID]*Subscription
}

// Hub implements a [TOPIC_REGISTRY] of independently paced subscriptions.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topicEntry
	byID   map[uuid.UUID]*Subscription
	closed bool

	config    hubConfig
	startedAt time.Time

	published    atomic.Uint64
	disconnected atomic.Uint64
	dropped      atomic.Uint64
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		topics:    make(map[string]*topicEntry),
		byID:      make(map[uuid.UUID]*Subscription),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscription on topic.
func (h *Hub) Subscribe(topic string) (*Subscription, error) {
	sub := newSubscription(topic, h.config.backlogLimit, h.config.overflowPolicy)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	// [LAZY_INIT] Create the topic entry only when the first subscriber arrives.
	entry, ok := h.topics[topic]
	if !ok {
		entry = &topicEntry{subs: make(map[uuid.UUID]*Subscription)}
		h.topics[topic] = entry
	}
	entry.subs[sub.id] = sub
	h.byID[sub.id] = sub

	return sub, nil
}

// Unsubscribe is idempotent and safe for ids that were never registered.
// Once it returns, no further event is enqueued for the subscription.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	sub, ok := h.byID[id]
	if ok {
		delete(h.byID, id)
		if entry, found := h.topics[sub.topic]; found {
			delete(entry.subs, id)
			// [GRACEFUL_RECLAMATION] Purge the topic once its last subscriber leaves.
			if len(entry.subs) == 0 {
				delete(h.topics, sub.topic)
			}
		}
		// [DROP_ACCOUNTING] Close first so the count is final.
		sub.close()
		h.dropped.Add(sub.Dropped())
	}
	h.mu.Unlock()
}

// Publish appends ev to every subscription of topic and returns how many accepted it.
// It never blocks on subscriber pace.
func (h *Hub) Publish(topic string, ev event.Eventer) int {
	h.mu.RLock()
	entry, ok := h.topics[topic]
	h.mu.RUnlock()
	if !ok {
		h.published.Add(1)
		return 0
	}

	entry.publishMu.Lock()

	// [SNAPSHOT] Copy the subscriber set; enqueueing happens outside the map lock.
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(entry.subs))
	for _, sub := range entry.subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	delivered := 0
	var overflowed []uuid.UUID
	for _, sub := range targets {
		switch sub.enqueue(ev) {
		case enqueued:
			delivered++
		case rejectedOverflow:
			overflowed = append(overflowed, sub.id)
		}
	}
	entry.publishMu.Unlock()

	h.published.Add(1)

	// [SLOW_CONSUMER_EVICTION] Only reachable with OverflowDisconnect.
	for _, id := range overflowed {
		h.disconnected.Add(1)
		h.Unsubscribe(id)
	}

	return delivered
}

// Stats returns a point-in-time view of the registry.
func (h *Hub) Stats() model.HubStats {
	h.mu.RLock()
	stats := model.HubStats{
		Topics:        len(h.topics),
		Subscriptions: len(h.byID),
		PerTopic:      make([]model.TopicStats, 0, len(h.topics)),
	}
	var liveDropped uint64
	for name, entry := range h.topics {
		stats.PerTopic = append(stats.PerTopic, model.TopicStats{Topic: name, Subscriptions: len(entry.subs)})
	}
	for _, sub := range h.byID {
		liveDropped += sub.Dropped()
	}
	h.mu.RUnlock()

	sort.Slice(stats.PerTopic, func(i, j int) bool { return stats.PerTopic[i].Topic < stats.PerTopic[j].Topic })

	stats.Published = h.published.Load()
	stats.Dropped = h.dropped.Load() + liveDropped
	stats.Disconnected = h.disconnected.Load()
	stats.Uptime = time.Since(h.startedAt)
	return stats
}

// Shutdown closes every subscription and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, sub := range h.byID {
		sub.close()
		h.dropped.Add(sub.Dropped())
	}
	h.byID = make(map[uuid.UUID]*Subscription)
	h.topics = make(map[string]*topicEntry)
	h.mu.Unlock()
}
