package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/logging"
)

// Consumer listens to every event queue and writes one structured
// "activity" log entry per message.  It reconnects on its own; broker
// outages never stop the service.
type Consumer struct {
	url string
	log logrus.FieldLogger
}

func NewConsumer(url string, log logrus.FieldLogger) *Consumer {
	return &Consumer{url: url, log: logging.Component(log, "activity-consumer")}
}

// Run consumes until ctx is done, then returns nil.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
		if err != nil {
			c.log.WithError(err).WithField("retry_in", backoff).Warn("failed to dial broker")
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}

	deliveries := make(chan amqp.Delivery)
	done := make(chan struct{})
	defer close(done)
	for _, q := range Queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "queue declare %s", q)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return errors.Wrapf(err, "queue consume %s", q)
		}
		go func() {
			for d := range msgs {
				select {
				case deliveries <- d:
				case <-done:
					return
				}
			}
		}()
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("connection closed")
			}
			return amqpErr
		case d := <-deliveries:
			if err := c.Handle(d.RoutingKey, d.Body); err != nil {
				c.log.WithError(err).WithField("queue", d.RoutingKey).Warn("handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message from queue and logs it as activity.
func (c *Consumer) Handle(queue string, body []byte) error {
	entry := c.log.WithField("queue", queue)
	switch queue {
	case PostCreatedQueue:
		var ev PostCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal")
		}
		entry.WithFields(logrus.Fields{"post_id": ev.PostID, "author": ev.Author, "asset_id": ev.AssetID}).
			Info("post created")
	case FriendshipCreatedQueue:
		var ev FriendshipCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal")
		}
		entry.WithFields(logrus.Fields{"user_id_left": ev.UserIDLeft, "user_id_right": ev.UserIDRight}).
			Info("friendship created")
	case AccountDeletedQueue:
		var ev AccountDeletedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return errors.Wrap(err, "unmarshal")
		}
		entry.WithFields(logrus.Fields{"user_id": ev.UserID, "sessions_revoked": ev.SessionsRevoked}).
			Info("account deleted")
	default:
		return errors.Errorf("unknown queue %q", queue)
	}
	return nil
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
