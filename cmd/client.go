package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/client/feed"
	"github.com/webitel/post-feed-service/internal/client/stream"
	"github.com/webitel/post-feed-service/internal/client/view"
	"github.com/webitel/post-feed-service/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// RunClient opens the stream first and bulk-loads the feed right after, so
// posts published in between arrive through the subscription. Every later
// reconnect fetches the snapshot again to cover what was missed while the
// stream was down; the feed drops the overlap by id.
func RunClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	f := feed.New(cfg.Client.RenderedLimit)
	loader := feed.NewLoader(&http.Client{Timeout: 10 * time.Second}, cfg.Client.APIURL)

	onPost := func(p model.Post) {
		if f.Apply(p) == feed.Inserted && !cfg.Client.TUI {
			logger.Info("POST_RENDERED",
				"post_id", p.ID,
				"author", view.AuthorLabel(p.AuthorID, p.AuthorName),
				"title", p.Title)
		}
	}

	m := stream.NewManager(stream.WebsocketDialer{}, stream.Options{
		URL:                        cfg.Client.WSURL,
		Topic:                      cfg.Client.Topic,
		HeartbeatInterval:          cfg.Client.HeartbeatInterval,
		HeartbeatTimeoutMultiplier: cfg.Client.HeartbeatTimeoutMultiplier,
		ReconnectDelay:             cfg.Client.ReconnectDelay,
	}, onPost, logger.With("component", "stream"))

	// [RESYNC] Buffered by one: bursts of reconnects collapse into one fetch.
	resync := make(chan struct{}, 1)
	m.OnStateChange(func(s stream.State) {
		if s == stream.Connected {
			logger.Info("FEED_LIVE")
			select {
			case resync <- struct{}{}:
			default:
			}
			return
		}
		logger.Warn("FEED_STALE", "state", s.String())
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.Connect()
		<-ctx.Done()
		m.Stop()
		return nil
	})
	g.Go(func() error {
		loadSnapshot(ctx, loader, f, logger)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-resync:
				loadSnapshot(ctx, loader, f, logger)
			}
		}
	})
	if cfg.Client.TUI {
		g.Go(func() error {
			// Leaving the view ends the client.
			defer cancel()
			return view.Run(ctx, f, m.State)
		})
	}
	return g.Wait()
}

// loadSnapshot applies the current authors and posts to f. A failed fetch is
// logged; the stream keeps running.
func loadSnapshot(ctx context.Context, loader *feed.Loader, f *feed.Feed, logger *slog.Logger) {
	snap, err := loader.Fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("BULK_LOAD_FAILED", "err", err)
		}
		return
	}
	logger.Info("BULK_LOAD_COMPLETED",
		"authors", len(snap.Authors),
		"posts", f.Load(snap))
}
