package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/webitel/post-feed-service/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (Websocket/Long-Polling)
type Deliverer interface {
	Subscribe(ctx context.Context, topic string) (*registry.Subscription, error)
	Unsubscribe(id uuid.UUID)
}

type DeliveryService struct {
	hub registry.Hubber

	mu    sync.Mutex
	binds map[uuid.UUID]func() bool
}

// NewDeliveryService returns a production-ready instance of the service.
func NewDeliveryService(hub registry.Hubber) *DeliveryService {
	return &DeliveryService{
		hub:   hub,
		binds: make(map[uuid.UUID]func() bool),
	}
}

// [SUBSCRIBE] HANDLES SUBSCRIPTION LIFECYCLE INITIATION
// The subscription is bound to ctx: when the owning connection's context
// ends, the subscription is removed, so it never outlives its connection.
func (s *DeliveryService) Subscribe(ctx context.Context, topic string) (*registry.Subscription, error) {
	sub, err := s.hub.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	id := sub.ID()
	s.mu.Lock()
	s.binds[id] = context.AfterFunc(ctx, func() {
		s.release(id)
		s.hub.Unsubscribe(id)
	})
	s.mu.Unlock()

	return sub, nil
}

// [UNSUBSCRIBE] Idempotent; safe to call after the context already released it.
// Detaches the context binding so nothing keeps the subscription reachable.
func (s *DeliveryService) Unsubscribe(id uuid.UUID) {
	if stop := s.release(id); stop != nil {
		stop()
	}
	s.hub.Unsubscribe(id)
}

// Bound reports how many subscriptions are still tied to a live context.
func (s *DeliveryService) Bound() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.binds)
}

func (s *DeliveryService) release(id uuid.UUID) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	stop := s.binds[id]
	delete(s.binds, id)
	return stop
}
