// Package pubsub builds the broker clients shared by the consumer and the producer.
package pubsub

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/webitel/post-feed-service/config"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

// Topology describes the delayed-redelivery queues around the main queue.
// A nacked delivery is dead-lettered into Retry, waits there for Delay and
// is dead-lettered back into Queue.
type Topology struct {
	Queue string
	Retry string
	Delay time.Duration
}

// Enabled reports whether nacks are parked instead of requeued at once.
func (t Topology) Enabled() bool { return t.Delay > 0 }

// QueueArgs are the arguments the main queue is declared with.
func (t Topology) QueueArgs() amqp091.Table {
	if !t.Enabled() {
		return nil
	}
	return amqp091.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.Retry,
	}
}

// RetryArgs are the arguments the retry queue is declared with.
func (t Topology) RetryArgs() amqp091.Table {
	return amqp091.Table{
		"x-message-ttl":             t.Delay.Milliseconds(),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.Queue,
	}
}

// Provider owns the broker configuration derived from config.AMQP.
type Provider struct {
	url      string
	cfg      amqp.Config
	topology Topology
	logger   watermill.LoggerAdapter
}

// NewProvider maps the service config onto a durable-queue AMQP config.
// Messages are published to the default exchange with the queue name as routing key.
func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) *Provider {
	c := amqp.NewDurableQueueConfig(cfg.AMQP.URL)
	topo := Topology{
		Queue: cfg.AMQP.Queue,
		Retry: cfg.AMQP.Queue + ".retry",
		Delay: cfg.AMQP.RetryDelay,
	}

	// [ACK_POLICY] With a retry delay every nack is dead-lettered into the
	// retry queue, so the broker never hands a rejected message straight back.
	if topo.Enabled() {
		c.Consume.NoRequeueOnNack = true
		c.Queue.Arguments = topo.QueueArgs()
	} else {
		c.Consume.NoRequeueOnNack = !cfg.AMQP.RequeueOnNack
	}
	if cfg.AMQP.Prefetch > 0 {
		c.Consume.Qos.PrefetchCount = cfg.AMQP.Prefetch
	}

	return &Provider{url: cfg.AMQP.URL, cfg: c, topology: topo, logger: logger}
}

func (p *Provider) Topology() Topology { return p.topology }

func (p *Provider) Publisher() (message.Publisher, error) {
	if err := p.declareRetry(); err != nil {
		return nil, err
	}
	pub, err := amqp.NewPublisher(p.cfg, p.logger)
	if err != nil {
		return nil, &model.ConnectivityError{Op: "amqp publisher", Err: err}
	}
	return pub, nil
}

func (p *Provider) Subscriber() (message.Subscriber, error) {
	if err := p.declareRetry(); err != nil {
		return nil, err
	}
	sub, err := amqp.NewSubscriber(p.cfg, p.logger)
	if err != nil {
		return nil, &model.ConnectivityError{Op: "amqp subscriber", Err: err}
	}
	return sub, nil
}

// declareRetry creates the retry queue. watermill only declares the queue it
// consumes from, so the parking queue is declared over a short-lived channel.
func (p *Provider) declareRetry() error {
	if !p.topology.Enabled() {
		return nil
	}
	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return &model.ConnectivityError{Op: "amqp declare retry queue", Err: err}
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return &model.ConnectivityError{Op: "amqp declare retry queue", Err: err}
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(p.topology.Retry, true, false, false, false, p.topology.RetryArgs()); err != nil {
		return &model.ConnectivityError{Op: "amqp declare retry queue", Err: fmt.Errorf("%s: %w", p.topology.Retry, err)}
	}
	return nil
}
