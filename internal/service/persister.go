package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

// PostStore is the write side of the post table.
type PostStore interface {
	Create(ctx context.Context, post model.Post) (model.Post, error)
}

// Persister stores a validated post and returns the stored, enriched copy.
type Persister interface {
	Persist(ctx context.Context, post model.Post) (model.Post, error)
}

type PostPersister struct {
	store    PostStore
	enricher Enricher
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewPostPersister guards store writes with a circuit breaker so that an
// unavailable store fails fast and leaves redelivery to the broker.
func NewPostPersister(store PostStore, enricher Enricher, logger *slog.Logger, cfg *config.Config) *PostPersister {
	maxFailures := cfg.Store.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "post-store",
		MaxRequests: 1,
		Timeout:     cfg.Store.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("STORE_BREAKER_STATE_CHANGED",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &PostPersister{
		store:    store,
		enricher: enricher,
		breaker:  breaker,
		logger:   logger,
	}
}

// Persist writes post. A failed write is reported as model.PersistenceError.
// Enrichment runs after the write and never fails the call: the row exists
// by then, and failing would only provoke a duplicate on redelivery.
func (p *PostPersister) Persist(ctx context.Context, post model.Post) (model.Post, error) {
	start := time.Now()

	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.store.Create(ctx, post)
	})
	if err != nil {
		return model.Post{}, &model.PersistenceError{Err: fmt.Errorf("create post: %w", err)}
	}
	stored := res.(model.Post)

	p.logger.Info("POST_PERSISTED",
		"post_id", stored.ID,
		"author_id", stored.AuthorID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	enriched, err := p.enricher.ResolveAuthor(ctx, stored)
	if err != nil {
		return stored, nil
	}
	return enriched, nil
}
