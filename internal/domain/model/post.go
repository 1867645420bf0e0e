package model

import "time"

// TopicPostCreated is the hub topic carrying freshly persisted posts.
// It doubles as the result field name of the streaming subscription.
const TopicPostCreated = "postCreated"

// KnownTopics lists the topics a remote client may subscribe to.
var KnownTopics = map[string]struct{}{
	TopicPostCreated: {},
}

// [POST] CORE ENTITY FLOWING THROUGH THE PIPELINE
// ID is assigned by the store on create and is the idempotency key
// for every downstream consumer.
type Post struct {
	ID         string    `json:"id"`
	AuthorID   int64     `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Author is the group anchor posts are rendered under.
type Author struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Snapshot is the result of the initial bulk load.
type Snapshot struct {
	Authors []Author `json:"authors"`
	Posts   []Post   `json:"posts"`
}
