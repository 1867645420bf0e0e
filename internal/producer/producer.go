package producer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/webitel/post-feed-service/internal/adapter/pubsub"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

// Producer publishes one generated post per tick. A tick that finds the
// broker unavailable is logged and skipped; there is no local buffering.
type Producer struct {
	dispatcher pubsub.PostDispatcher
	generator  *Generator
	interval   time.Duration
	logger     *slog.Logger
}

func NewProducer(dispatcher pubsub.PostDispatcher, generator *Generator, interval time.Duration, logger *slog.Logger) *Producer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Producer{
		dispatcher: dispatcher,
		generator:  generator,
		interval:   interval,
		logger:     logger,
	}
}

// Run ticks until ctx ends.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("PRODUCER_STARTED", "interval", p.interval.String())
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("PRODUCER_STOPPED")
			return
		case <-ticker.C:
			_ = p.Tick(ctx)
		}
	}
}

// Tick publishes a single post.
func (p *Producer) Tick(ctx context.Context) error {
	post := p.generator.Post()

	err := p.dispatcher.Publish(ctx, post)
	switch {
	case errors.Is(err, model.ErrNotConnected):
		p.logger.Warn("PRODUCER_NOT_CONNECTED", "author_id", post.AuthorID.Value)
	case err != nil:
		p.logger.Error("PRODUCER_PUBLISH_FAILED", "err", err, "author_id", post.AuthorID.Value)
	default:
		p.logger.Debug("POST_PUBLISHED", "author_id", post.AuthorID.Value, "title", post.Title)
	}
	return err
}
