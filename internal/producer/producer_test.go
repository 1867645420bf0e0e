package producer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/service/dto"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingDispatcher struct {
	mu    sync.Mutex
	err   error
	posts []dto.PostV1
}

func (d *recordingDispatcher) Publish(_ context.Context, post dto.PostV1) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.posts = append(d.posts, post)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.posts)
}

func TestGeneratedPostsAreValid(t *testing.T) {
	g := NewGenerator(42, 10)

	for range 200 {
		post := g.Post()
		require.NoError(t, post.Validate())
		assert.GreaterOrEqual(t, post.AuthorID.Value, int64(1))
		assert.LessOrEqual(t, post.AuthorID.Value, int64(10))
	}
}

func TestGeneratorIsDeterministicForSeed(t *testing.T) {
	assert.Equal(t, NewGenerator(7, 50).Post(), NewGenerator(7, 50).Post())
}

func TestAuthorsCoverIDRange(t *testing.T) {
	authors := NewGenerator(1, 5).Authors(5)

	require.Len(t, authors, 5)
	for i, a := range authors {
		assert.Equal(t, int64(i+1), a.ID)
		assert.NotEmpty(t, a.Name)
	}
}

func TestTickSkipsWhenNotConnected(t *testing.T) {
	d := &recordingDispatcher{err: model.ErrNotConnected}
	p := NewProducer(d, NewGenerator(1, 10), time.Second, discard)

	err := p.Tick(context.Background())
	assert.ErrorIs(t, err, model.ErrNotConnected)
	assert.Zero(t, d.count())

	// The link comes back; the next tick publishes a new post, nothing was buffered.
	d.mu.Lock()
	d.err = nil
	d.mu.Unlock()
	require.NoError(t, p.Tick(context.Background()))
	assert.Equal(t, 1, d.count())
}

func TestRunPublishesEveryInterval(t *testing.T) {
	d := &recordingDispatcher{}
	p := NewProducer(d, NewGenerator(1, 10), 10*time.Millisecond, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	assert.Eventually(t, func() bool { return d.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestRunSurvivesPublishErrors(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("channel closed")}
	p := NewProducer(d, NewGenerator(1, 10), 5*time.Millisecond, discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	assert.Zero(t, d.count())
}

func TestPostsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewTestRouter(NewGenerator(3, 20)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/posts")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var post dto.PostV1
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&post))
	assert.NoError(t, post.Validate())
}
