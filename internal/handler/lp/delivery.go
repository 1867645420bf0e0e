package lp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/event"
	"github.com/webitel/post-feed-service/internal/domain/model"
	lpmarshaller "github.com/webitel/post-feed-service/internal/handler/marshaller/lp"
	"github.com/webitel/post-feed-service/internal/service"
)

// maxBatch bounds how many queued events one poll response carries.
const maxBatch = 16

type LPHandler struct {
	deliverer service.Deliverer
	timeout   time.Duration
}

func NewLPHandler(deliverer service.Deliverer, cfg *config.Config) *LPHandler {
	timeout := cfg.HTTP.PollTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LPHandler{
		deliverer: deliverer,
		timeout:   timeout,
	}
}

// Poll handles the long-polling request.
// It holds the connection until an event arrives or timeout occurs. Only
// events published while the request is open are seen; there is no backfill.
func (h *LPHandler) Poll(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if _, ok := model.KnownTopics[topic]; !ok {
		http.Error(w, "unknown topic", http.StatusNotFound)
		return
	}

	// The subscription lives only for the duration of this HTTP request.
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sub, err := h.deliverer.Subscribe(ctx, topic)
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusServiceUnavailable)
		return
	}
	defer h.deliverer.Unsubscribe(sub.ID())

	ev, err := sub.Next(ctx)
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		// The subscription may report closed first; it is released by the same deadline.
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		// Client disconnected or the hub shut down.
		return
	}

	events := []event.Eventer{ev}

	// [BATCHING] Drain what is already queued to save follow-up requests.
	for len(events) < maxBatch {
		next, ok := sub.TryNext()
		if !ok {
			break
		}
		events = append(events, next)
	}

	data, err := lpmarshaller.MarshallEvents(events)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
