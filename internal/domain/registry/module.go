package registry

import (
	"context"

	"github.com/webitel/post-feed-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		// [CLEAN_INJECTION] Configure Hub using Functional Options
		func(cfg *config.Config) (*Hub, error) {
			policy, err := ParseOverflowPolicy(cfg.Hub.OverflowPolicy)
			if err != nil {
				return nil, err
			}
			return NewHub(
				WithBacklogLimit(cfg.Hub.BacklogLimit),
				WithOverflowPolicy(policy),
			), nil
		},
		func(h *Hub) Hubber { return h },
	),
	fx.Invoke(func(lc fx.Lifecycle, h Hubber) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				h.Shutdown() // [GRACEFUL_SHUTDOWN] Release every live subscription
				return nil
			},
		})
	}),
)
