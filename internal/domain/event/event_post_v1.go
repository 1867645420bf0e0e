package event

import (
	"sync/atomic"

	"github.com/webitel/post-feed-service/internal/domain/model"
)

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*PostCreatedEvent)(nil)

// PostCreatedEvent wraps a persisted post for in-process fan-out.
//
// The post itself is never mutated after construction. The cache slot holds
// the transport encoding so that a post fanned out to many websocket
// sessions is marshaled once.
type PostCreatedEvent struct {
	post    model.Post
	traceID string
	cached  atomic.Value
}

// NewPostCreatedEvent binds a stored post to the trace it arrived with.
func NewPostCreatedEvent(post model.Post, traceID string) *PostCreatedEvent {
	return &PostCreatedEvent{post: post, traceID: traceID}
}

func (e *PostCreatedEvent) GetID() string        { return e.post.ID }
func (e *PostCreatedEvent) GetTraceID() string   { return e.traceID }
func (e *PostCreatedEvent) GetKind() EventKind   { return PostCreated }
func (e *PostCreatedEvent) GetTopic() string     { return model.TopicPostCreated }
func (e *PostCreatedEvent) GetOccurredAt() int64 { return e.post.CreatedAt.UnixMilli() }
func (e *PostCreatedEvent) GetPayload() any      { return e.post }

// Post returns a copy of the wrapped post.
func (e *PostCreatedEvent) Post() model.Post { return e.post }

// GetCached is safe for concurrent use by many delivery sessions.
func (e *PostCreatedEvent) GetCached() any { return e.cached.Load() }

// SetCached ignores nil. Every stored value must share one concrete type.
func (e *PostCreatedEvent) SetCached(v any) {
	if v == nil {
		return
	}
	e.cached.Store(v)
}
