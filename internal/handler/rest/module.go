package rest

import (
	httpsrv "github.com/webitel/post-feed-service/infra/server/http"
	"github.com/webitel/post-feed-service/internal/store/sqlite"
	"go.uber.org/fx"
)

var Module = fx.Module("query-rest",
	fx.Provide(
		func(s *sqlite.Store) Reader { return s },
		NewQueryHandler,
	),
	fx.Invoke(func(server *httpsrv.Server, h *QueryHandler) {
		h.Routes(server.Router)
	}),
)
