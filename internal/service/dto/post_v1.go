package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/webitel/post-feed-service/internal/domain/model"
)

// [QUEUE_V1] THE PAYLOAD PUBLISHED ON THE POSTS QUEUE
type PostV1 struct {
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	AuthorID AuthorRef `json:"authorId"`
}

// AuthorRef accepts both a JSON number and a numeric string, as producers
// differ in how they encode the author reference.
type AuthorRef struct {
	Value int64
	Set   bool
	Raw   string
}

func NewAuthorRef(id int64) AuthorRef {
	return AuthorRef{Value: id, Set: true}
}

func (a *AuthorRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = AuthorRef{}
		return nil
	}

	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	raw = strings.TrimSpace(raw)

	*a = AuthorRef{Set: true, Raw: raw}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		a.Value = v
	}
	return nil
}

func (a AuthorRef) MarshalJSON() ([]byte, error) {
	if !a.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(a.Value, 10)), nil
}

// Validate enforces the fields every persisted post must carry.
func (d *PostV1) Validate() error {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return &model.ValidationError{Field: "title", Reason: "is required"}
	case strings.TrimSpace(d.Content) == "":
		return &model.ValidationError{Field: "content", Reason: "is required"}
	case !d.AuthorID.Set:
		return &model.ValidationError{Field: "authorId", Reason: "is required"}
	case d.AuthorID.Value <= 0:
		return &model.ValidationError{Field: "authorId", Reason: fmt.Sprintf("must be a positive integer, got %q", d.AuthorID.Raw)}
	}
	return nil
}

func (d *PostV1) ToDomain() model.Post {
	return model.Post{
		Title:    d.Title,
		Content:  d.Content,
		AuthorID: d.AuthorID.Value,
	}
}
