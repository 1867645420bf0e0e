package amqp

import (
	"context"

	"github.com/webitel/post-feed-service/internal/domain/event"
	"github.com/webitel/post-feed-service/internal/service/dto"
)

// [ON_POST_CREATED]
// Stores the post and turns the stored row into a fan-out event.
func (h *MessageHandler) OnPostCreatedV1(ctx context.Context, raw *dto.PostV1) (event.Eventer, error) {
	stored, err := h.persister.Persist(ctx, raw.ToDomain())
	if err != nil {
		return nil, err
	}

	return event.NewPostCreatedEvent(stored, TraceIDFromContext(ctx)), nil
}
