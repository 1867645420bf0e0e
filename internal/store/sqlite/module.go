package sqlite

import (
	"context"

	"github.com/webitel/post-feed-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("store",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config) (*Store, error) {
			s, err := Open(context.Background(), cfg.Store.DSN)
			if err != nil {
				return nil, err
			}
			// [LIFECYCLE] Close the pool after every consumer has stopped.
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return s.Close()
				},
			})
			return s, nil
		},
	),
)
