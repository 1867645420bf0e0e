// Package http hosts the HTTP listener shared by the streaming, long-poll and query endpoints.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/webitel/post-feed-service/config"
	"go.uber.org/fx"
)

type Server struct {
	Router chi.Router

	srv    *http.Server
	logger *slog.Logger
	addr   net.Addr
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(logger),
		middleware.Recoverer,
	)

	return &Server{
		Router: r,
		srv:    &http.Server{Addr: cfg.HTTP.Addr, Handler: r},
		logger: logger,
	}
}

// Start binds the listener synchronously so a taken port fails app start.
func (s *Server) Start(context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.logger.Info("HTTP_SERVER_LISTENING", "addr", s.addr.String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP_SERVER_FAILED", "err", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests. Hijacked websocket connections are not
// tracked by net/http and are closed by their handler.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() net.Addr { return s.addr }

var Module = fx.Module("http-server",
	fx.Provide(NewServer),
	fx.Invoke(func(lc fx.Lifecycle, s *Server, cfg *config.Config) {
		lc.Append(fx.Hook{
			OnStart: s.Start,
			OnStop: func(ctx context.Context) error {
				if cfg.HTTP.ShutdownTimeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
					defer cancel()
				}
				return s.Stop(ctx)
			},
		})
	}),
)
