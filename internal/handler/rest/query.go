package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"github.com/webitel/post-feed-service/internal/domain/registry"
)

// Reader is the read side of the store used by the bulk load.
type Reader interface {
	ListAuthors(ctx context.Context) ([]model.Author, error)
	ListPosts(ctx context.Context) ([]model.Post, error)
}

// QueryHandler serves the bulk-load and diagnostics endpoints.
type QueryHandler struct {
	reader Reader
	hub    registry.Hubber
	logger *slog.Logger
}

func NewQueryHandler(reader Reader, hub registry.Hubber, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{reader: reader, hub: hub, logger: logger}
}

// Routes mounts the handlers on r.
func (h *QueryHandler) Routes(r chi.Router) {
	r.Get("/api/v1/authors", h.Authors)
	r.Get("/api/v1/posts", h.Posts)
	r.Get("/stats", h.Stats)
}

func (h *QueryHandler) Authors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.reader.ListAuthors(r.Context())
	if err != nil {
		h.fail(w, "LIST_AUTHORS_FAILED", err)
		return
	}
	writeJSON(w, authors)
}

// Posts returns every stored post in creation order.
func (h *QueryHandler) Posts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.reader.ListPosts(r.Context())
	if err != nil {
		h.fail(w, "LIST_POSTS_FAILED", err)
		return
	}
	writeJSON(w, posts)
}

func (h *QueryHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.hub.Stats())
}

func (h *QueryHandler) fail(w http.ResponseWriter, event string, err error) {
	h.logger.Error(event, "err", err)
	http.Error(w, "store unavailable", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
