package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/webitel/post-feed-service/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// Loader fetches the initial snapshot from the query endpoints.
type Loader struct {
	client  *http.Client
	baseURL string
}

func NewLoader(client *http.Client, baseURL string) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Fetch requests authors and posts concurrently. Either failure fails the load.
func (l *Loader) Fetch(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.get(ctx, "/api/v1/authors", &snap.Authors)
	})
	g.Go(func() error {
		return l.get(ctx, "/api/v1/posts", &snap.Posts)
	})

	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

func (l *Loader) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return &model.ConnectivityError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
