package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

func post(id string, author int64) model.Post {
	return model.Post{ID: id, AuthorID: author, Title: "t" + id}
}

func ids(posts []model.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestApplySameIDTwice(t *testing.T) {
	f := New(0)

	assert.Equal(t, Inserted, f.Apply(post("1", 1)))
	v := f.Version()
	assert.Equal(t, Skipped, f.Apply(post("1", 1)))

	assert.Equal(t, []string{"1"}, ids(f.Posts()))
	assert.Equal(t, v, f.Version())
}

func TestGroupingNeverInterleaves(t *testing.T) {
	f := New(0)
	const a, b = 1, 2

	f.Apply(post("A1", a))
	f.Apply(post("B1", b))
	f.Apply(post("A2", a))

	assert.Equal(t, []string{"A1", "A2", "B1"}, ids(f.Posts()))
}

func TestGroupOrderFollowsCreation(t *testing.T) {
	f := New(0)

	f.Apply(post("B1", 2))
	f.Apply(post("A1", 1))
	f.Apply(post("A2", 1))
	f.Apply(post("B2", 2))

	assert.Equal(t, []string{"B1", "B2", "A1", "A2"}, ids(f.Posts()))
}

func TestReconnectRedelivery(t *testing.T) {
	f := New(0)

	// First connection delivers e1, e2 and drops; the next one replays e2.
	for _, p := range []model.Post{post("e1", 1), post("e2", 1)} {
		f.Apply(p)
	}
	for _, p := range []model.Post{post("e2", 1), post("e3", 1)} {
		f.Apply(p)
	}

	assert.Equal(t, []string{"e1", "e2", "e3"}, ids(f.Posts()))
}

func TestLoadThenStreamDedupes(t *testing.T) {
	f := New(0)

	n := f.Load(model.Snapshot{
		Authors: []model.Author{{ID: 2, Name: "Bob"}, {ID: 1, Name: "Ada"}},
		Posts:   []model.Post{post("1", 1), post("2", 2)},
	})
	assert.Equal(t, 2, n)

	assert.Equal(t, Skipped, f.Apply(post("2", 2)))
	assert.Equal(t, Inserted, f.Apply(post("3", 1)))

	entries := f.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, Entry{Kind: AuthorHeader, Author: model.Author{ID: 2, Name: "Bob"}}, entries[0])
	assert.Equal(t, "2", entries[1].Post.ID)
	assert.Equal(t, AuthorHeader, entries[2].Kind)
	assert.Equal(t, "Ada", entries[2].Author.Name)
	assert.Equal(t, "1", entries[3].Post.ID)
	assert.Equal(t, "3", entries[4].Post.ID)
}

func TestImplicitGroupTakesEnrichedName(t *testing.T) {
	f := New(0)

	p := post("1", 9)
	p.AuthorName = "Grace"
	f.Apply(p)

	entries := f.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "Grace", entries[0].Author.Name)

	// A named header from the directory wins.
	f.AddAuthor(model.Author{ID: 9, Name: "Grace Hopper"})
	assert.Equal(t, "Grace Hopper", f.Entries()[0].Author.Name)
}

func TestBoundedWindowEvictsOldest(t *testing.T) {
	f := New(2)

	f.Apply(post("1", 1))
	f.Apply(post("2", 2))
	f.Apply(post("3", 1))

	assert.Equal(t, []string{"3", "2"}, ids(f.Posts()))
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, Skipped, f.Apply(post("3", 1)))
}

func TestConcurrentApply(t *testing.T) {
	f := New(0)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 250 {
				// Every worker applies the same ids; only one copy may survive.
				f.Apply(post(fmt.Sprint(i), int64(i%5)))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 250, f.Len())
	assert.Len(t, f.Posts(), 250)
}

func TestLoaderFetchesBoth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/authors", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.Author{{ID: 1, Name: "Ada"}})
	})
	mux.HandleFunc("/api/v1/posts", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]model.Post{post("1", 1)})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	snap, err := NewLoader(srv.Client(), srv.URL+"/").Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Author{{ID: 1, Name: "Ada"}}, snap.Authors)
	assert.Equal(t, []string{"1"}, ids(snap.Posts))
}

func TestLoaderFailsOnEitherEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/authors", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/api/v1/posts", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := NewLoader(srv.Client(), srv.URL).Fetch(context.Background())
	assert.ErrorContains(t, err, "/api/v1/posts")
}
