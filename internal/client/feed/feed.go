// Package feed keeps the client-side view of posts grouped by author and
// applies every post at most once, whether it came from the bulk load or the stream.
package feed

import (
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

type Outcome int

const (
	Inserted Outcome = iota + 1
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Skipped:
		return "skipped"
	default:
		return "Outcome(" + strconv.Itoa(int(o)) + ")"
	}
}

type EntryKind int

const (
	AuthorHeader EntryKind = iota + 1
	PostEntry
)

// Entry is one visible row: an author header or a post under it.
type Entry struct {
	Kind   EntryKind
	Author model.Author
	Post   model.Post
}

type group struct {
	author model.Author
	posts  []model.Post
}

// Feed is safe for concurrent use.
type Feed struct {
	mu      sync.Mutex
	groups  []*group
	byID    map[int64]*group
	applied map[string]int64          // unbounded rendered set: post id -> author id
	window  *lru.Cache[string, int64] // bounded rendered set, nil when unbounded
	version uint64
}

// New returns a feed. A positive limit bounds the rendered set: the least
// recently applied post is evicted from the view once the limit is exceeded.
func New(limit int) *Feed {
	f := &Feed{byID: make(map[int64]*group)}
	if limit > 0 {
		f.window, _ = lru.NewWithEvict(limit, f.evict)
	} else {
		f.applied = make(map[string]int64)
	}
	return f
}

// AddAuthor anchors a group for a, or names an implicit one.
func (f *Feed) AddAuthor(a model.Author) {
	f.mu.Lock()
	defer f.mu.Unlock()

	g := f.groupFor(a.ID)
	if a.Name != "" || g.author.Name == "" {
		g.author = a
	}
	f.version++
}

// Apply inserts post after the last entry of its author's group.
// A post whose id was already applied is skipped and the view is unchanged.
func (f *Feed) Apply(post model.Post) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen(post.ID) {
		return Skipped
	}

	g := f.groupFor(post.AuthorID)
	if g.author.Name == "" && post.AuthorName != "" {
		g.author.Name = post.AuthorName
	}
	g.posts = append(g.posts, post)
	f.remember(post)
	f.version++

	return Inserted
}

// Load applies a bulk snapshot: author headers first, then posts.
// It returns how many posts were inserted.
func (f *Feed) Load(s model.Snapshot) int {
	for _, a := range s.Authors {
		f.AddAuthor(a)
	}
	n := 0
	for _, p := range s.Posts {
		if f.Apply(p) == Inserted {
			n++
		}
	}
	return n
}

// Entries returns the visible rows in presentation order.
// Groups without posts are omitted.
func (f *Feed) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Entry, 0, len(f.groups)+f.lenLocked())
	for _, g := range f.groups {
		if len(g.posts) == 0 {
			continue
		}
		out = append(out, Entry{Kind: AuthorHeader, Author: g.author})
		for _, p := range g.posts {
			out = append(out, Entry{Kind: PostEntry, Author: g.author, Post: p})
		}
	}
	return out
}

// Posts returns the visible posts in presentation order.
func (f *Feed) Posts() []model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Post, 0, f.lenLocked())
	for _, g := range f.groups {
		out = append(out, g.posts...)
	}
	return out
}

// Len is the number of visible posts.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lenLocked()
}

// Version increases with every change, letting renderers skip idle redraws.
func (f *Feed) Version() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *Feed) lenLocked() int {
	if f.window != nil {
		return f.window.Len()
	}
	return len(f.applied)
}

func (f *Feed) groupFor(authorID int64) *group {
	g, ok := f.byID[authorID]
	if !ok {
		// [IMPLICIT_GROUP] First sight of an author opens a group at the end.
		g = &group{author: model.Author{ID: authorID}}
		f.byID[authorID] = g
		f.groups = append(f.groups, g)
	}
	return g
}

func (f *Feed) seen(id string) bool {
	if f.window != nil {
		return f.window.Contains(id)
	}
	_, ok := f.applied[id]
	return ok
}

func (f *Feed) remember(p model.Post) {
	if f.window != nil {
		f.window.Add(p.ID, p.AuthorID)
		return
	}
	f.applied[p.ID] = p.AuthorID
}

// evict runs inside window.Add, with f.mu held.
func (f *Feed) evict(id string, authorID int64) {
	g, ok := f.byID[authorID]
	if !ok {
		return
	}
	for i := range g.posts {
		if g.posts[i].ID == id {
			g.posts = append(g.posts[:i], g.posts[i+1:]...)
			return
		}
	}
}
