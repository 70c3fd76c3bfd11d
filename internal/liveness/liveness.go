// Package liveness verifies that a backing store is reachable, both once at
// startup and continuously while the service runs.  Loss of a store is
// reported as a ConnectionLostError, never as an ordinary query failure.
package liveness

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrConnectionLost matches every ConnectionLostError via errors.Is.
var ErrConnectionLost = errors.New("connection lost")

// ConnectionLostError reports that Store became unreachable.
type ConnectionLostError struct {
	Store string
	Cause error
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("[%s] connection lost: %v", e.Store, e.Cause)
}

func (e *ConnectionLostError) Unwrap() error { return e.Cause }

func (e *ConnectionLostError) Is(target error) bool { return target == ErrConnectionLost }

// IsConnectionLost reports whether err (or anything it wraps) is a lost connection.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}

// PingFunc checks a store round trip.
type PingFunc func(ctx context.Context) error

// Probe runs ping with a deadline.  The ping runs in its own goroutine so a
// driver that ignores its context still cannot hold the caller past timeout.
// Cancellation of ctx itself is returned as ctx.Err(), not as a lost connection.
func Probe(ctx context.Context, store string, ping PingFunc, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ping(pctx) }()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConnectionLostError{Store: store, Cause: err}
	case <-pctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConnectionLostError{Store: store, Cause: errors.Errorf("failed to connect: timeout after %s", timeout)}
	}
}

// MonitorOptions tunes a Monitor.  Zero values get defaults.
type MonitorOptions struct {
	Interval time.Duration // time between pings (default 5s)
	Timeout  time.Duration // ceiling of one ping (default 2s)
	Failures int           // consecutive failures that count as lost (default 1)
}

// Monitor pings a store in the background for the lifetime of one service
// instance.
type Monitor struct {
	store string
	ping  PingFunc
	opts  MonitorOptions
	log   logrus.FieldLogger
	nudge chan struct{}
	pings atomic.Int64
}

func NewMonitor(store string, ping PingFunc, opts MonitorOptions, log logrus.FieldLogger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Failures < 1 {
		opts.Failures = 1
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Monitor{
		store: store,
		ping:  ping,
		opts:  opts,
		log:   log.WithField("store", store),
		nudge: make(chan struct{}, 1),
	}
}

// Watch blocks until ctx is done (returning nil) or the store has failed
// opts.Failures consecutive pings (returning a *ConnectionLostError).
func (m *Monitor) Watch(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.log.Info("connection listener started")
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-m.nudge:
		}

		m.pings.Add(1)
		err := Probe(ctx, m.store, m.ping, m.opts.Timeout)
		if err == nil {
			if failures > 0 {
				m.log.Info("connection recovered")
			}
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		failures++
		m.log.WithError(err).WithField("failures", failures).Warn("liveness ping failed")
		if failures >= m.opts.Failures {
			return err
		}
	}
}

// Nudge asks the monitor to ping now instead of waiting for the next tick.
// It never blocks.
func (m *Monitor) Nudge() {
	select {
	case m.nudge <- struct{}{}:
	default:
	}
}

// Pings returns how many pings the monitor has issued.
func (m *Monitor) Pings() int64 { return m.pings.Load() }
