package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/service/dto"
)

// PostDispatcher defines the producer-side contract for outgoing posts.
// This allows the producer to stay agnostic of the transport implementation.
type PostDispatcher interface {
	Publish(ctx context.Context, post dto.PostV1) error
}

// connectivity is implemented by publishers that track their broker link.
type connectivity interface {
	IsConnected() bool
}

type postDispatcher struct {
	publisher message.Publisher
	queue     string
}

// NewPostDispatcher returns the interface instead of the pointer to the struct.
func NewPostDispatcher(pub message.Publisher, queue string) PostDispatcher {
	return &postDispatcher{
		publisher: pub,
		queue:     queue,
	}
}

// Publish sends post to the queue. It returns model.ErrNotConnected without
// touching the broker when the link is known to be down.
func (d *postDispatcher) Publish(ctx context.Context, post dto.PostV1) error {
	if c, ok := d.publisher.(connectivity); ok && !c.IsConnected() {
		return model.ErrNotConnected
	}

	payload, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("post dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("trace_id", watermill.NewShortUUID())
	msg.SetContext(ctx)

	if err := d.publisher.Publish(d.queue, msg); err != nil {
		return &model.ConnectivityError{Op: "publish to " + d.queue, Err: err}
	}
	return nil
}
