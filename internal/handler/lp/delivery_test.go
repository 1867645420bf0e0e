package lp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/event"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/domain/registry"
	lpmarshaller "github.com/webitel/post-feed-service/internal/handler/marshaller/lp"
	"github.com/webitel/post-feed-service/internal/service"
)

func newServer(t *testing.T, timeout time.Duration) (*registry.Hub, *httptest.Server) {
	t.Helper()
	hub := registry.NewHub()
	cfg := &config.Config{}
	cfg.HTTP.PollTimeout = timeout

	h := NewLPHandler(service.NewDeliveryService(hub), cfg)
	r := chi.NewRouter()
	r.Get("/api/v1/poll/{topic}", h.Poll)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return hub, srv
}

func TestPollTimesOutWithNoContent(t *testing.T) {
	hub, srv := newServer(t, 50*time.Millisecond)

	resp, err := http.Get(srv.URL + "/api/v1/poll/" + model.TopicPostCreated)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, hub.Stats().Subscriptions)
}

func TestPollUnknownTopic(t *testing.T) {
	_, srv := newServer(t, time.Second)

	resp, err := http.Get(srv.URL + "/api/v1/poll/nope")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPollReturnsBatch(t *testing.T) {
	hub, srv := newServer(t, 5*time.Second)

	type result struct {
		resp *http.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/api/v1/poll/" + model.TopicPostCreated)
		done <- result{resp, err}
	}()

	require.Eventually(t, func() bool { return hub.Stats().Subscriptions == 1 }, 2*time.Second, 5*time.Millisecond)
	for i := range 3 {
		hub.Publish(model.TopicPostCreated, event.NewPostCreatedEvent(model.Post{ID: fmt.Sprint(i)}, ""))
	}

	res := <-done
	require.NoError(t, res.err)
	defer res.resp.Body.Close()
	require.Equal(t, http.StatusOK, res.resp.StatusCode)

	var body lpmarshaller.Response
	require.NoError(t, json.NewDecoder(res.resp.Body).Decode(&body))
	require.NotEmpty(t, body.Events)
	assert.Equal(t, "0", body.Events[0].ID)
	assert.Equal(t, "PostCreated", body.Events[0].Type)
	for i, ev := range body.Events {
		assert.Equal(t, fmt.Sprint(i), ev.ID)
	}
}
