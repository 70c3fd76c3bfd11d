package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/logging"
	"github.com/iliyamo/anythought/internal/queue"
)

// EventPublisher announces committed domain changes.  Publishing is best
// effort: services log failures and carry on.
type EventPublisher interface {
	PostCreated(ctx context.Context, ev queue.PostCreatedEvent) error
	FriendshipCreated(ctx context.Context, ev queue.FriendshipCreatedEvent) error
	AccountDeleted(ctx context.Context, ev queue.AccountDeletedEvent) error
}

// NopPublisher drops every event.  Used when AMQP_URL is unset.
type NopPublisher struct{}

func (NopPublisher) PostCreated(context.Context, queue.PostCreatedEvent) error { return nil }
func (NopPublisher) FriendshipCreated(context.Context, queue.FriendshipCreatedEvent) error { return nil }
func (NopPublisher) AccountDeleted(context.Context, queue.AccountDeletedEvent) error { return nil }

// AMQPPublisher publishes each event to its durable queue on the default
// exchange.  It dials per publish, so a broker restart needs no recovery.
type AMQPPublisher struct {
	url string
	log logrus.FieldLogger
}

func NewAMQPPublisher(url string, log logrus.FieldLogger) *AMQPPublisher {
	return &AMQPPublisher{url: url, log: logging.Component(log, "publisher")}
}

func (p *AMQPPublisher) PostCreated(ctx context.Context, ev queue.PostCreatedEvent) error {
	return p.publish(ctx, queue.PostCreatedQueue, ev)
}

func (p *AMQPPublisher) FriendshipCreated(ctx context.Context, ev queue.FriendshipCreatedEvent) error {
	return p.publish(ctx, queue.FriendshipCreatedQueue, ev)
}

func (p *AMQPPublisher) AccountDeleted(ctx context.Context, ev queue.AccountDeletedEvent) error {
	return p.publish(ctx, queue.AccountDeletedQueue, ev)
}

func (p *AMQPPublisher) publish(ctx context.Context, name string, event any) error {
	log := p.log.WithField("queue", name)
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		log.WithError(err).Warn("dial failed")
		return errors.Wrap(err, "dial broker")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("channel open failed")
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		log.WithError(err).Warn("queue declare failed")
		return errors.Wrap(err, "declare queue")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		name,  // routing key = queue name
		false, // mandatory
		false, // immediate
		pub,
	); err != nil {
		log.WithError(err).Warn("publish failed")
		return errors.Wrap(err, "publish")
	}
	return nil
}

// publishAfterCommit runs publish detached from the request's cancellation
// and logs instead of failing the caller.
func publishAfterCommit(ctx context.Context, log logrus.FieldLogger, name string, publish func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := publish(ctx); err != nil {
		log.WithError(err).WithField("event", name).Warn("event not published")
	}
}
