package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/post-feed-service/config"
	infrapubsub "github.com/webitel/post-feed-service/infra/pubsub"
	"go.uber.org/fx"
)

// NewPublisher builds the broker publisher and closes it with the app.
func NewPublisher(lc fx.Lifecycle, p *infrapubsub.Provider) (message.Publisher, error) {
	pub, err := p.Publisher()
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}

// NewSubscriber builds the broker subscriber. The router closes it on shutdown.
func NewSubscriber(p *infrapubsub.Provider) (message.Subscriber, error) {
	return p.Subscriber()
}

var Module = fx.Module("pubsub",
	fx.Provide(
		infrapubsub.NewProvider,
		NewPublisher,
		NewSubscriber,
		func(pub message.Publisher, cfg *config.Config) PostDispatcher {
			return NewPostDispatcher(pub, cfg.AMQP.Queue)
		},
	),
)
