package service

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

// Enricher defines the contract for augmenting a stored post before fan-out.
type Enricher interface {
	// ResolveAuthor fills the display name of the post's author.
	ResolveAuthor(ctx context.Context, post model.Post) (model.Post, error)
}

// AuthorDirectory is the read side of the author table.
type AuthorDirectory interface {
	GetAuthor(ctx context.Context, id int64) (model.Author, error)
}

type AuthorEnricher struct {
	authors AuthorDirectory
	cache   *lru.Cache[int64, model.Author]
}

// NewAuthorEnricherService provides a thread-safe service with an internal LRU cache.
func NewAuthorEnricherService(authors AuthorDirectory) *AuthorEnricher {
	// [MEMORY_MANAGEMENT] Bounded cache of "hot" authors; a feed is dominated by a few of them.
	cache, _ := lru.New[int64, model.Author](4096)

	return &AuthorEnricher{
		authors: authors,
		cache:   cache,
	}
}

// ResolveAuthor orchestrates the cache-aside lookup.
func (e *AuthorEnricher) ResolveAuthor(ctx context.Context, post model.Post) (model.Post, error) {
	// [IDENTITY_GUARD]
	if post.AuthorID <= 0 {
		return post, nil
	}

	// [HOT_PATH]
	if author, ok := e.cache.Get(post.AuthorID); ok {
		post.AuthorName = author.Name
		return post, nil
	}

	author, err := e.authors.GetAuthor(ctx, post.AuthorID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		// [RESILIENCE] Unknown authors still get their post delivered.
		return post, nil
	case err != nil:
		return post, fmt.Errorf("resolve author %d: %w", post.AuthorID, err)
	}

	e.cache.Add(author.ID, author)
	post.AuthorName = author.Name
	return post, nil
}
