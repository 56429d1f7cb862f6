package amqp

import (
	"context"
	"errors"
	"fmt"

	"github.com/cristianortiz/auctionSettlement/internal/notification/application"
	"github.com/cristianortiz/auctionSettlement/internal/notification/domain"
	"github.com/cristianortiz/auctionSettlement/internal/shared/apperror"
	"github.com/cristianortiz/auctionSettlement/internal/shared/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

const exchangeKind = "topic"

// acknowledger is the part of amqp.Delivery the consumer settles with.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Consumer reads the settlement events of one user from a topic exchange.
// Every event is published with the routing key user.<id>.<type>.
type Consumer struct {
	userID        string
	exchange      string
	conn          *amqp.Connection
	channel       *amqp.Channel
	queue         string
	discriminator *domain.Discriminator
}

// NewConsumer dials url and binds an exclusive queue for userID.
func NewConsumer(url, exchange, userID string, d *domain.Discriminator) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindNetwork, "AMQP_DIAL_FAILED", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, multierr.Append(apperror.Wrap(apperror.KindNetwork, "AMQP_CHANNEL_FAILED", err), conn.Close())
	}

	c := &Consumer{userID: userID, exchange: exchange, conn: conn, channel: ch, discriminator: d}
	if err := c.setup(); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	return c, nil
}

// NewSourceFactory builds one consumer per user session.
func NewSourceFactory(url, exchange string) application.ExternalSourceFactory {
	return func(userID string, d *domain.Discriminator) (application.ExternalSource, error) {
		return NewConsumer(url, exchange, userID, d)
	}
}

func (c *Consumer) setup() error {
	if err := c.channel.ExchangeDeclare(
		c.exchange,
		exchangeKind,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.exchange, err)
	}

	q, err := c.channel.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	key := RoutingKey(c.userID)
	if err := c.channel.QueueBind(q.Name, key, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	c.queue = q.Name
	log.Info("amqp queue bound",
		zap.String("queue", q.Name),
		zap.String("exchange", c.exchange),
		zap.String("routing_key", key))
	return nil
}

// RoutingKey matches every event addressed to userID.
func RoutingKey(userID string) string { return "user." + userID + ".#" }

// Run consumes until ctx is done or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context, sink application.Submitter) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, true, false, false, nil)
	if err != nil {
		return apperror.Wrap(apperror.KindNetwork, "AMQP_CONSUME_FAILED", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			c.handle(d, d.Body, sink)
		}
	}
}

// handle settles one delivery: malformed or misaddressed events are dropped,
// a full router inbox puts the event back on the queue.
func (c *Consumer) handle(ack acknowledger, body []byte, sink application.Submitter) {
	msg, err := c.discriminator.Discriminate(body)
	if err != nil {
		log.Warn("dropping malformed amqp event", zap.Error(err))
		c.settle(ack.Nack(false, false))
		return
	}

	err = sink.Submit(application.Envelope{Message: msg, Source: application.SourceAMQP})
	switch {
	case err == nil:
		c.settle(ack.Ack(false))
	case apperror.KindOf(err) == apperror.KindNetwork:
		c.settle(ack.Nack(false, true))
	default:
		log.Warn("amqp event refused by router", zap.String("key", msg.DedupKey().String()), zap.Error(err))
		c.settle(ack.Nack(false, false))
	}
}

func (c *Consumer) settle(err error) {
	if err != nil {
		log.Error("failed to settle amqp delivery", zap.String("queue", c.queue), zap.Error(err))
	}
}

func (c *Consumer) Close() error {
	var err error
	if c.channel != nil {
		err = multierr.Append(err, c.channel.Close())
	}
	if c.conn != nil {
		err = multierr.Append(err, c.conn.Close())
	}
	return err
}
