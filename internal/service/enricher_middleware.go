package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/post-feed-service/internal/domain/model"
)

// EnricherMiddleware implements [DECORATOR_PATTERN] to add observability
// to the enrichment process without touching business logic.
type EnricherMiddleware struct {
	Next   Enricher
	Logger *slog.Logger
}

// NewEnricherMiddleware creates a new logging decorator for the Enricher.
func NewEnricherMiddleware(next Enricher, logger *slog.Logger) Enricher {
	return &EnricherMiddleware{
		Next:   next,
		Logger: logger,
	}
}

// ResolveAuthor wraps the lookup with execution timing and outcome logging.
func (m *EnricherMiddleware) ResolveAuthor(ctx context.Context, post model.Post) (model.Post, error) {
	start := time.Now()

	res, err := m.Next.ResolveAuthor(ctx, post)

	duration := time.Since(start)
	if err != nil {
		m.Logger.Warn("AUTHOR_ENRICHMENT_FAILED",
			"err", err,
			"post_id", post.ID,
			"author_id", post.AuthorID,
			"duration_ms", duration.Milliseconds(),
		)
	} else {
		m.Logger.Debug("AUTHOR_ENRICHMENT_COMPLETED",
			"post_id", post.ID,
			"resolved", res.AuthorName != "",
			"duration_ms", duration.Milliseconds(),
		)
	}

	return res, err
}
