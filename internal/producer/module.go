package producer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/adapter/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("producer",
	fx.Provide(
		func(cfg *config.Config) *Generator {
			return NewGenerator(cfg.Producer.Seed, cfg.Producer.MaxAuthorID)
		},
		func(d pubsub.PostDispatcher, g *Generator, cfg *config.Config, logger *slog.Logger) *Producer {
			return NewProducer(d, g, cfg.Producer.Interval, logger)
		},
	),
	fx.Invoke(runProducer, runTestServer),
)

func runProducer(lc fx.Lifecycle, p *Producer) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				p.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// runTestServer exposes GET /posts when producer.http_addr is set.
func runTestServer(lc fx.Lifecycle, g *Generator, cfg *config.Config, logger *slog.Logger) {
	if cfg.Producer.HTTPAddr == "" {
		return
	}
	srv := &http.Server{Addr: cfg.Producer.HTTPAddr, Handler: NewTestRouter(g)}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Info("PRODUCER_HTTP_LISTENING", "addr", ln.Addr().String())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("PRODUCER_HTTP_FAILED", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
