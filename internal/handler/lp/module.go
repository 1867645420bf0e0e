package lp

import (
	httpsrv "github.com/webitel/post-feed-service/infra/server/http"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery-lp",
	fx.Provide(NewLPHandler),
	fx.Invoke(func(server *httpsrv.Server, h *LPHandler) {
		server.Router.Get("/api/v1/poll/{topic}", h.Poll)
	}),
)
