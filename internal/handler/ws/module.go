package ws

import (
	"context"

	httpsrv "github.com/webitel/post-feed-service/infra/server/http"
	"go.uber.org/fx"
)

// Path is where clients open the streaming socket.
const Path = "/graphql"

var Module = fx.Module("delivery-ws",
	fx.Provide(NewWSHandler),
	fx.Invoke(func(lc fx.Lifecycle, server *httpsrv.Server, h *WSHandler) {
		server.Router.Handle(Path, h)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				h.Shutdown()
				return nil
			},
		})
	}),
)
