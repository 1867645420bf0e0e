package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/webitel/post-feed-service/internal/client/feed"
	"github.com/webitel/post-feed-service/internal/client/stream"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

func TestRows(t *testing.T) {
	f := feed.New(0)
	f.AddAuthor(model.Author{ID: 1, Name: "Ada"})
	f.Apply(model.Post{ID: "1", AuthorID: 1, Title: "first"})
	f.Apply(model.Post{ID: "2", AuthorID: 7, Title: "second"})

	assert.Equal(t, [][]string{
		{"author", "post", "title"},
		{"Ada (1)", "", ""},
		{"", "#1", "first"},
		{"author 7", "", ""},
		{"", "#2", "second"},
	}, Rows(f.Entries()))
}

func TestStatusLine(t *testing.T) {
	assert.Equal(t, "live | 3 posts | q to quit", StatusLine(stream.Connected, 3))
	assert.Contains(t, StatusLine(stream.Connecting, 0), "stale")
	assert.Contains(t, StatusLine(stream.Disconnected, 0), "disconnected")
}
