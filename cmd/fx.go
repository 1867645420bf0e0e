package cmd

import (
	"context"
	"log/slog"

	"github.com/webitel/post-feed-service/config"
	httpsrv "github.com/webitel/post-feed-service/infra/server/http"
	pubsubadapter "github.com/webitel/post-feed-service/internal/adapter/pubsub"
	"github.com/webitel/post-feed-service/internal/domain/registry"
	amqphandler "github.com/webitel/post-feed-service/internal/handler/amqp"
	lphandler "github.com/webitel/post-feed-service/internal/handler/lp"
	resthandler "github.com/webitel/post-feed-service/internal/handler/rest"
	wshandler "github.com/webitel/post-feed-service/internal/handler/ws"
	"github.com/webitel/post-feed-service/internal/producer"
	"github.com/webitel/post-feed-service/internal/service"
	"github.com/webitel/post-feed-service/internal/store/sqlite"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// seedModule fills the author directory before any consumer starts.
var seedModule = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, store *sqlite.Store, cfg *config.Config, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return SeedAuthors(ctx, store, cfg, logger)
			},
		})
	}),
)

func commonOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			// fx.ValidateApp resolves the graph without running constructors.
			if logger == nil {
				return fxevent.NopLogger
			}
			l := &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		pubsubadapter.Module,
	)
}

// serverOptions wires consumer, hub, transports and store into one process.
func serverOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		commonOptions(cfg),
		sqlite.Module,
		seedModule,
		registry.Module,
		service.Module,
		httpsrv.Module,
		wshandler.Module,
		lphandler.Module,
		resthandler.Module,
		amqphandler.Module,
	)
}

func producerOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		commonOptions(cfg),
		producer.Module,
	)
}

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(serverOptions(cfg))
}

func NewProducerApp(cfg *config.Config) *fx.App {
	return fx.New(producerOptions(cfg))
}
