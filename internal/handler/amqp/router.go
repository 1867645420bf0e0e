package amqp

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/registry"
	"github.com/webitel/post-feed-service/internal/service"
)

// HandlerPostCreated names the consumer of the posts queue.
const HandlerPostCreated = "ON_POST_CREATED"

type MessageHandler struct {
	hub       registry.Hubber
	logger    *slog.Logger
	persister service.Persister
}

func NewMessageHandler(hub registry.Hubber, logger *slog.Logger, persister service.Persister) *MessageHandler {
	return &MessageHandler{hub, logger, persister}
}

// NewRouter builds the Watermill router with the router-wide middleware.
func NewRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, err
	}
	// [PANIC_GUARD] Bind recovers itself; this covers the middleware chain.
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// [REGISTRATION_PIPELINE]
// Validation failures are nacked, not retried in-process and not sent to a
// poison queue: the broker's requeue/dead-letter policy decides their fate.
func (h *MessageHandler) RegisterHandlers(router *message.Router, sub message.Subscriber, cfg *config.Config) {
	router.AddConsumerHandler(
		HandlerPostCreated,
		cfg.AMQP.Queue,
		sub,
		Bind(h, h.OnPostCreatedV1),
	).AddMiddleware(
		TraceIDMiddleware,
		LoggingMiddleware(h.logger),
		middleware.NewThrottle(100, time.Second).Middleware,
		middleware.Timeout(30*time.Second),
	)

	h.logger.Info("AMQP_PIPELINE_READY", "queue", cfg.AMQP.Queue)
}
