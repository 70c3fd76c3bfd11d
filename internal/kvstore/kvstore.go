// Package kvstore supervises the Redis connection shared by the session
// store and the rate limiter.
package kvstore

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/liveness"
	"github.com/iliyamo/anythought/internal/logging"
)

// StoreName labels key-value connection failures.
const StoreName = "redis"

type Config struct {
	Options      *redis.Options
	ProbeTimeout time.Duration
	Health       liveness.MonitorOptions
}

// Error is a failed key-value command.  Transport failures also match
// liveness.ErrConnectionLost.
type Error struct {
	Conn  bool
	Cause error
}

func (e *Error) Error() string {
	if e.Conn {
		return "redis connection error: " + e.Cause.Error()
	}
	return "redis: " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool { return e.Conn && target == liveness.ErrConnectionLost }

// Client owns one Redis client for the lifetime of a service instance.
type Client struct {
	rdb     *redis.Client
	monitor *liveness.Monitor
	log     logrus.FieldLogger
}

// Open creates the client and probes it within cfg.ProbeTimeout.  On
// failure the client is closed and a ConnectionLostError returned.
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Client, error) {
	if cfg.Options == nil {
		return nil, errors.New("redis options are required")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	log = logging.Component(log, StoreName).WithField("endpoint", cfg.Options.Addr)

	rdb := redis.NewClient(cfg.Options)
	log.Info("connecting")
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := liveness.Probe(ctx, StoreName, ping, cfg.ProbeTimeout); err != nil {
		_ = rdb.Close()
		log.WithError(err).Error("liveness probe failed")
		return nil, err
	}
	log.Info("connected")
	return newClient(rdb, cfg.Health, log), nil
}

func newClient(rdb *redis.Client, health liveness.MonitorOptions, log logrus.FieldLogger) *Client {
	c := &Client{rdb: rdb, log: log}
	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	c.monitor = liveness.NewMonitor(StoreName, ping, health, log)
	return c
}

// Execute runs fn with the client.  redis.Nil and redis.TxFailedErr come
// back untouched so callers can branch on them; other failures come back
// as *Error, and transport failures also trigger an immediate liveness ping.
func (c *Client) Execute(ctx context.Context, fn func(*redis.Client) error) error {
	err := fn(c.rdb)
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr) {
		return err
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	if isTransport(err) {
		c.monitor.Nudge()
		return &Error{Conn: true, Cause: err}
	}
	return &Error{Cause: err}
}

func isTransport(err error) bool {
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, redis.ErrPoolTimeout) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Redis exposes the raw client for components that manage their own
// scripts, such as the rate limiter.
func (c *Client) Redis() *redis.Client { return c.rdb }

func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Watch monitors the connection until ctx is done (nil) or Redis is lost.
func (c *Client) Watch(ctx context.Context) error { return c.monitor.Watch(ctx) }

func (c *Client) Close() error {
	c.log.Info("closing client")
	return c.rdb.Close()
}
