package amqp

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/post-feed-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		NewMessageHandler,
		NewRouter,
	),

	fx.Invoke(
		func(h *MessageHandler, router *message.Router, sub message.Subscriber, cfg *config.Config) {
			h.RegisterHandlers(router, sub, cfg)
		},
		runRouter,
	),
)

// runRouter ties the router to the app lifecycle. A broker that is down at
// start-up surfaces as a router error and is logged; the process stays up.
func runRouter(lc fx.Lifecycle, router *message.Router, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := router.Run(ctx); err != nil {
					logger.Error("AMQP_ROUTER_STOPPED", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return router.Close()
		},
	})
}
