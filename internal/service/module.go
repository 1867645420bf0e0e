package service

import (
	"log/slog"

	"github.com/webitel/post-feed-service/internal/store/sqlite"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		// Domain services
		fx.Annotate(
			NewDeliveryService,
			fx.As(new(Deliverer)),
		),
		fx.Annotate(
			NewAuthorEnricherService,
			fx.As(new(Enricher)),
		),
		fx.Annotate(
			NewPostPersister,
			fx.As(new(Persister)),
		),

		// [STORE_PORTS] Narrow views of the SQLite store
		func(s *sqlite.Store) AuthorDirectory { return s },
		func(s *sqlite.Store) PostStore { return s },
	),

	// [DECORATION_LAYER] Intercept Enricher to add cross-cutting concerns
	fx.Decorate(func(orig Enricher, logger *slog.Logger) Enricher {
		return NewEnricherMiddleware(orig, logger)
	}),
)
