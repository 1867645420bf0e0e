package cmd

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/registry"
	"github.com/webitel/post-feed-service/internal/handler/ws"
	"github.com/webitel/post-feed-service/internal/service"
	"github.com/webitel/post-feed-service/internal/store/sqlite"
	"go.uber.org/fx"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig(nil)
	require.NoError(t, err)
	return cfg
}

func TestServerGraphIsComplete(t *testing.T) {
	require.NoError(t, fx.ValidateApp(serverOptions(testConfig(t))))
}

func TestProducerGraphIsComplete(t *testing.T) {
	require.NoError(t, fx.ValidateApp(producerOptions(testConfig(t))))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestSeedAuthorsIsRepeatable(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := testConfig(t)
	cfg.Store.SeedAuthors = 5
	cfg.Producer.Seed = 1
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, SeedAuthors(ctx, store, cfg, logger))
	first, err := store.ListAuthors(ctx)
	require.NoError(t, err)
	require.Len(t, first, 5)

	cfg.Producer.Seed = 2
	require.NoError(t, SeedAuthors(ctx, store, cfg, logger))
	second, err := store.ListAuthors(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunClientStopsWithContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/authors", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1,"name":"Ada"}]`))
	})
	mux.HandleFunc("/api/v1/posts", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	api := httptest.NewServer(mux)
	defer api.Close()

	cfg := testConfig(t)
	cfg.Client.APIURL = api.URL
	// Nothing listens here; the manager keeps retrying until stopped.
	cfg.Client.WSURL = "ws://127.0.0.1:1/graphql"
	cfg.Client.ReconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- RunClient(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestRunClientReloadsSnapshotWhenStreamConnects(t *testing.T) {
	cfg := testConfig(t)
	hub := registry.NewHub()
	t.Cleanup(hub.Shutdown)

	var fetches atomic.Int32
	mux := http.NewServeMux()
	mux.Handle("/graphql", ws.NewWSHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), service.NewDeliveryService(hub), cfg))
	mux.HandleFunc("/api/v1/authors", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v1/posts", func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg.Client.APIURL = srv.URL
	cfg.Client.WSURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/graphql"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunClient(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	// One load at start, one more once the stream is live.
	require.Eventually(t, func() bool {
		return fetches.Load() >= 2 && hub.Stats().Subscriptions == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}
}
