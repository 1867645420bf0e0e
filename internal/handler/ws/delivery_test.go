package ws

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/event"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/domain/registry"
	wsmarshaller "github.com/webitel/post-feed-service/internal/handler/marshaller/ws"
	"github.com/webitel/post-feed-service/internal/service"
)

const postQuery = "subscription { postCreated { id title content authorId } }"

type harness struct {
	hub     *registry.Hub
	handler *WSHandler
	url     string
}

func newHarness(t *testing.T, idle time.Duration, opts ...registry.Option) *harness {
	t.Helper()
	hub := registry.NewHub(opts...)

	cfg := &config.Config{}
	cfg.WS.IdleTimeout = idle
	cfg.WS.WriteTimeout = time.Second

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewWSHandler(logger, service.NewDeliveryService(hub), cfg)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})

	return &harness{hub: hub, handler: handler, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (h *harness) waitSubscriptions(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.hub.Stats().Subscriptions == n },
		2*time.Second, 5*time.Millisecond)
}

func (h *harness) publish(i int) {
	h.hub.Publish(model.TopicPostCreated, event.NewPostCreatedEvent(model.Post{
		ID:       fmt.Sprint(i),
		AuthorID: 1,
		Title:    "t",
		Content:  "c",
	}, ""))
}

func send(t *testing.T, conn *websocket.Conn, data []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func subscribe(t *testing.T, conn *websocket.Conn, id, query string) {
	t.Helper()
	b, err := wsmarshaller.NewSubscribe(id, query)
	require.NoError(t, err)
	send(t, conn, b)
}

func read(t *testing.T, conn *websocket.Conn) wsmarshaller.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wsmarshaller.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestPingPong(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	send(t, conn, wsmarshaller.NewControl("p1", wsmarshaller.TypePing))
	assert.Equal(t, wsmarshaller.Frame{ID: "p1", Type: wsmarshaller.TypePong}, read(t, conn))
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	send(t, conn, []byte("{not json"))
	assert.Equal(t, wsmarshaller.TypeError, read(t, conn).Type)

	send(t, conn, []byte(`{"id":"x","type":"shout"}`))
	f := read(t, conn)
	assert.Equal(t, wsmarshaller.TypeError, f.Type)
	assert.Equal(t, "x", f.ID)

	send(t, conn, wsmarshaller.NewControl("", wsmarshaller.TypePing))
	assert.Equal(t, wsmarshaller.TypePong, read(t, conn).Type)
}

func TestSubscribeRejectsUnknownTopic(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	subscribe(t, conn, "1", "subscription { postDeleted { id } }")
	f := read(t, conn)
	assert.Equal(t, wsmarshaller.TypeError, f.Type)
	assert.Equal(t, "1", f.ID)
	assert.Zero(t, h.hub.Stats().Subscriptions)
}

func TestSubscribeStreamsInOrder(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	subscribe(t, conn, "1", postQuery)
	h.waitSubscriptions(t, 1)

	for i := 1; i <= 20; i++ {
		h.publish(i)
	}

	for i := 1; i <= 20; i++ {
		f := read(t, conn)
		require.Equal(t, wsmarshaller.TypeData, f.Type)
		assert.Equal(t, "1", f.ID)

		var post model.Post
		require.NoError(t, wsmarshaller.DecodeData(f.Payload, model.TopicPostCreated, &post))
		assert.Equal(t, fmt.Sprint(i), post.ID)
		assert.Equal(t, int64(1), post.AuthorID)
	}
}

func TestDuplicateSubscriptionID(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	subscribe(t, conn, "1", postQuery)
	h.waitSubscriptions(t, 1)
	subscribe(t, conn, "1", postQuery)

	assert.Equal(t, wsmarshaller.TypeError, read(t, conn).Type)
	assert.Equal(t, 1, h.hub.Stats().Subscriptions)
}

func TestCompleteUnsubscribes(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	subscribe(t, conn, "1", postQuery)
	h.waitSubscriptions(t, 1)

	send(t, conn, wsmarshaller.NewControl("1", wsmarshaller.TypeComplete))
	h.waitSubscriptions(t, 0)

	// Completing twice is harmless and the socket stays usable.
	send(t, conn, wsmarshaller.NewControl("1", wsmarshaller.TypeComplete))
	send(t, conn, wsmarshaller.NewControl("p", wsmarshaller.TypePing))
	assert.Equal(t, wsmarshaller.TypePong, read(t, conn).Type)
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	subscribe(t, conn, "1", postQuery)
	subscribe(t, conn, "2", "{ postCreated }")
	h.waitSubscriptions(t, 2)

	require.NoError(t, conn.Close())
	h.waitSubscriptions(t, 0)
}

func TestIdleConnectionIsClosed(t *testing.T) {
	h := newHarness(t, 100*time.Millisecond)
	conn := h.dial(t)

	subscribe(t, conn, "1", postQuery)
	h.waitSubscriptions(t, 1)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	h.waitSubscriptions(t, 0)
}

func TestOverflowDisconnectCompletesSubscription(t *testing.T) {
	h := newHarness(t, time.Minute,
		registry.WithBacklogLimit(1),
		registry.WithOverflowPolicy(registry.OverflowDisconnect),
	)
	conn := h.dial(t)

	subscribe(t, conn, "1", "{ postCreated }")
	h.waitSubscriptions(t, 1)

	// Flood faster than the socket drains; the hub cuts the subscription.
	for i := range 100_000 {
		h.publish(i)
		if h.hub.Stats().Subscriptions == 0 {
			break
		}
	}
	h.waitSubscriptions(t, 0)

	for {
		f := read(t, conn)
		if f.Type == wsmarshaller.TypeComplete {
			assert.Equal(t, "1", f.ID)
			return
		}
		require.Equal(t, wsmarshaller.TypeData, f.Type)
	}
}

func TestShutdownClosesSockets(t *testing.T) {
	h := newHarness(t, time.Minute)
	conn := h.dial(t)

	subscribe(t, conn, "1", postQuery)
	h.waitSubscriptions(t, 1)

	h.handler.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	h.waitSubscriptions(t, 0)

	// New sockets are turned away.
	late, _, err := websocket.DefaultDialer.Dial(h.url, nil)
	require.NoError(t, err)
	defer late.Close()
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}
