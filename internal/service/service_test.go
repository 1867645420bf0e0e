package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/domain/registry"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeStore struct {
	mu      sync.Mutex
	fail    error
	created []model.Post
	authors map[int64]model.Author
	lookups int
}

func (f *fakeStore) Create(_ context.Context, post model.Post) (model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return model.Post{}, f.fail
	}
	post.ID = strconv.Itoa(len(f.created) + 1)
	post.CreatedAt = time.Now()
	f.created = append(f.created, post)
	return post, nil
}

func (f *fakeStore) GetAuthor(_ context.Context, id int64) (model.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	a, ok := f.authors[id]
	if !ok {
		return model.Author{}, model.ErrNotFound
	}
	return a, nil
}

func testConfig(maxFailures uint32) *config.Config {
	cfg := &config.Config{}
	cfg.Store.Breaker.MaxFailures = maxFailures
	cfg.Store.Breaker.OpenTimeout = time.Minute
	return cfg
}

func TestPersistStoresAndEnriches(t *testing.T) {
	store := &fakeStore{authors: map[int64]model.Author{3: {ID: 3, Name: "Ada"}}}
	p := NewPostPersister(store, NewAuthorEnricherService(store), discard, testConfig(5))

	got, err := p.Persist(context.Background(), model.Post{Title: "t", Content: "c", AuthorID: 3})
	require.NoError(t, err)

	assert.Equal(t, "1", got.ID)
	assert.Equal(t, "Ada", got.AuthorName)
	assert.Len(t, store.created, 1)
}

func TestPersistReportsPersistenceError(t *testing.T) {
	store := &fakeStore{fail: errors.New("disk full")}
	p := NewPostPersister(store, NewAuthorEnricherService(store), discard, testConfig(5))

	_, err := p.Persist(context.Background(), model.Post{Title: "t", Content: "c", AuthorID: 1})
	require.Error(t, err)
	assert.True(t, model.IsPersistence(err))
	assert.ErrorContains(t, err, "disk full")
}

func TestPersistBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	store := &fakeStore{fail: errors.New("unavailable")}
	p := NewPostPersister(store, NewAuthorEnricherService(store), discard, testConfig(2))
	ctx := context.Background()
	post := model.Post{Title: "t", Content: "c", AuthorID: 1}

	for range 2 {
		_, err := p.Persist(ctx, post)
		require.Error(t, err)
	}

	// The store recovers, but the open breaker keeps failing fast.
	store.mu.Lock()
	store.fail = nil
	store.mu.Unlock()

	_, err := p.Persist(ctx, post)
	require.Error(t, err)
	assert.True(t, model.IsPersistence(err))
	assert.Empty(t, store.created)
}

func TestPersistToleratesUnknownAuthor(t *testing.T) {
	store := &fakeStore{}
	p := NewPostPersister(store, NewAuthorEnricherService(store), discard, testConfig(5))

	got, err := p.Persist(context.Background(), model.Post{Title: "t", Content: "c", AuthorID: 404})
	require.NoError(t, err)
	assert.Empty(t, got.AuthorName)
	assert.Equal(t, "1", got.ID)
}

func TestAuthorEnricherCachesLookups(t *testing.T) {
	store := &fakeStore{authors: map[int64]model.Author{1: {ID: 1, Name: "Ada"}}}
	e := NewEnricherMiddleware(NewAuthorEnricherService(store), discard)

	for range 3 {
		got, err := e.ResolveAuthor(context.Background(), model.Post{ID: "9", AuthorID: 1})
		require.NoError(t, err)
		assert.Equal(t, "Ada", got.AuthorName)
	}
	assert.Equal(t, 1, store.lookups)
}

func TestDeliverySubscriptionEndsWithContext(t *testing.T) {
	hub := registry.NewHub()
	svc := NewDeliveryService(hub)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := svc.Subscribe(ctx, model.TopicPostCreated)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Stats().Subscriptions)

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription outlived its context")
	}
	assert.Equal(t, 0, hub.Stats().Subscriptions)

	// Explicit unsubscribe after the context released it is harmless.
	svc.Unsubscribe(sub.ID())
}

func TestDeliveryUnsubscribeReleasesContextBinding(t *testing.T) {
	hub := registry.NewHub()
	svc := NewDeliveryService(hub)
	ctx := context.Background()

	for range 1000 {
		sub, err := svc.Subscribe(ctx, model.TopicPostCreated)
		require.NoError(t, err)
		svc.Unsubscribe(sub.ID())
	}

	assert.Equal(t, 0, svc.Bound())
	assert.Equal(t, 0, hub.Stats().Subscriptions)
}

func TestDeliveryContextEndReleasesBinding(t *testing.T) {
	hub := registry.NewHub()
	svc := NewDeliveryService(hub)

	ctx, cancel := context.WithCancel(context.Background())
	for range 3 {
		_, err := svc.Subscribe(ctx, model.TopicPostCreated)
		require.NoError(t, err)
	}
	require.Equal(t, 3, svc.Bound())

	cancel()

	assert.Eventually(t, func() bool {
		return svc.Bound() == 0 && hub.Stats().Subscriptions == 0
	}, time.Second, 5*time.Millisecond)
}
